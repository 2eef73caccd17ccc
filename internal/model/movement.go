package model

import "time"

// MovementType classifies a physical stock transfer.
type MovementType string

const (
	MovementBayRefill      MovementType = "bay_refill"
	MovementManualTransfer MovementType = "manual_transfer"
	MovementScanAdjustment MovementType = "scan_adjustment"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementBayRefill, MovementManualTransfer, MovementScanAdjustment:
		return true
	}
	return false
}

// StockMovement is the immutable local record of a transfer between locations.
type StockMovement struct {
	ID           string       `json:"id"`
	ProductID    string       `json:"product_id"`
	FromLocation string       `json:"from_location,omitempty"`
	ToLocation   string       `json:"to_location,omitempty"`
	Quantity     int          `json:"quantity"`
	Type         MovementType `json:"type"`
	UserID       string       `json:"user_id"`
	MovedAt      time.Time    `json:"moved_at"`
}
