package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the local product record the sync core reads and reconciles.
type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	StockLevel   int             `json:"stock_level"`
	Barcode      string          `json:"barcode,omitempty"`
	Barcode2     string          `json:"barcode_2,omitempty"`
	Barcode3     string          `json:"barcode_3,omitempty"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Barcodes returns the non-empty barcode fields in lookup order.
func (p *Product) Barcodes() []string {
	codes := make([]string, 0, 3)
	for _, c := range []string{p.Barcode, p.Barcode2, p.Barcode3} {
		if c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// Apply copies the remote value of every change onto p.
func (p *Product) Apply(changes Changes) error {
	for field, c := range changes {
		switch field {
		case FieldName:
			p.Name = c.Remote
		case FieldBarcode:
			p.Barcode = c.Remote
		case FieldPrice:
			price, err := decimal.NewFromString(c.Remote)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", c.Remote, err)
			}
			p.Price = price
		case FieldStockLevel:
			level, err := strconv.Atoi(c.Remote)
			if err != nil {
				return fmt.Errorf("invalid stock level %q: %w", c.Remote, err)
			}
			p.StockLevel = level
		default:
			return fmt.Errorf("unknown field %q", field)
		}
	}
	return nil
}
