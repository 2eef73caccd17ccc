package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CatalogLocation is the quantity of a catalog item held at one remote location.
type CatalogLocation struct {
	LocationID   string `json:"location_id"`
	LocationCode string `json:"location_code"`
	Quantity     int    `json:"quantity"`
}

// CatalogItem is a read-only snapshot of one remote catalog entry, alive for one reconciliation pass.
type CatalogItem struct {
	SKU        string            `json:"sku"`
	Title      string            `json:"title"`
	Price      decimal.Decimal   `json:"price"`
	StockLevel int               `json:"stock_level"`
	Barcode    string            `json:"barcode,omitempty"`
	Locations  []CatalogLocation `json:"locations,omitempty"`
	Raw        json.RawMessage   `json:"-"`
}

// StockLevel is the remote stock position of one SKU.
type StockLevel struct {
	SKU       string            `json:"sku"`
	Level     int               `json:"level"`
	Available int               `json:"available"`
	Locations []CatalogLocation `json:"locations,omitempty"`
}

// StockHistoryEntry is one remote stock change for a SKU.
type StockHistoryEntry struct {
	Date       string `json:"date"`
	Level      int    `json:"level"`
	ChangeQty  int    `json:"change_qty"`
	Note       string `json:"note,omitempty"`
	LocationID string `json:"location_id,omitempty"`
}
