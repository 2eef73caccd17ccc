package model

import "time"

// DeltaReason says whether a delta adds to or removes from remote stock.
type DeltaReason string

const (
	ReasonIncrease DeltaReason = "increase"
	ReasonDecrease DeltaReason = "decrease"
)

// Valid reports whether r is a known reason.
func (r DeltaReason) Valid() bool {
	return r == ReasonIncrease || r == ReasonDecrease
}

// DeltaState is the sync lifecycle of a StockDelta.
type DeltaState string

const (
	DeltaUnsubmitted DeltaState = "unsubmitted"
	DeltaSubmitted   DeltaState = "submitted"
	DeltaSynced      DeltaState = "synced"
	DeltaFailed      DeltaState = "failed"
)

// StockDelta is one locally recorded quantity change (a scan) awaiting remote reconciliation.
// Deltas are never deleted; they are the audit trail of every sync attempt.
type StockDelta struct {
	ID             string      `json:"id"`
	ItemKey        string      `json:"item_key"`
	QuantityChange int         `json:"quantity_change"`
	Reason         DeltaReason `json:"reason"`
	SourceID       string      `json:"source_id,omitempty"`
	State          DeltaState  `json:"state"`
	PreviousLevel  *int        `json:"previous_level,omitempty"`
	NewLevel       *int        `json:"new_level,omitempty"`
	ErrorType      string      `json:"error_type,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsSynced reports whether the delta has already been applied to the remote.
func (d *StockDelta) IsSynced() bool {
	return d.State == DeltaSynced
}
