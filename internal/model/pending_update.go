package model

import "time"

// UpdateStatus is the review state of a PendingProductUpdate.
type UpdateStatus string

const (
	UpdatePending      UpdateStatus = "pending"
	UpdateAutoAccepted UpdateStatus = "auto_accepted"
	UpdateApproved     UpdateStatus = "approved"
	UpdateRejected     UpdateStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s UpdateStatus) Valid() bool {
	switch s {
	case UpdatePending, UpdateAutoAccepted, UpdateApproved, UpdateRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s UpdateStatus) Terminal() bool {
	return s != UpdatePending
}

// Watched product fields compared during catalog reconciliation.
const (
	FieldName       = "name"
	FieldPrice      = "price"
	FieldStockLevel = "stock_level"
	FieldBarcode    = "barcode"
)

// FieldChange holds the local and remote values of one differing field, rendered as strings.
type FieldChange struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Changes maps a watched field name to its detected change.
type Changes map[string]FieldChange

// Fields returns the changed field names.
func (c Changes) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	return fields
}

// PendingProductUpdate records a remote catalog change awaiting (or exempt from) human review.
type PendingProductUpdate struct {
	ID              string       `json:"id"`
	ProductID       string       `json:"product_id"`
	ChangesDetected Changes      `json:"changes_detected"`
	Status          UpdateStatus `json:"status"`
	ReviewerID      string       `json:"reviewer_id,omitempty"`
	ReviewedAt      *time.Time   `json:"reviewed_at,omitempty"`
	AcceptedAt      *time.Time   `json:"accepted_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
