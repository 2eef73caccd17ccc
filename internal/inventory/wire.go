package inventory

import (
	"encoding/json"

	"stocksync-api/internal/model"

	"github.com/shopspring/decimal"
)

// Remote endpoint paths. Field names below follow the remote's JSON contract.
const (
	PathGetStockLevel       = "/api/Stock/GetStockLevel"
	PathSetStockLevel       = "/api/Stock/SetStockLevel"
	PathSearchStockItems    = "/api/Stock/SearchStockItems"
	PathGetStockItemDetails = "/api/Stock/GetStockItemDetails"
	PathGetStockItemHistory = "/api/Stock/GetStockItemHistory"
	PathGetStockItemsFull   = "/api/Stock/GetStockItemsFull"
	PathGetLocationsByItem  = "/api/Locations/GetStockLocationsByProduct"
	PathTransferStock       = "/api/Stock/TransferStock"
)

type skuRequest struct {
	SKU string `json:"SKU"`
}

type locationRecord struct {
	LocationID   string `json:"StockLocationId"`
	LocationCode string `json:"LocationName"`
	Quantity     *int   `json:"Quantity"`
}

type stockLevelResponse struct {
	SKU        string           `json:"SKU"`
	StockLevel *int             `json:"StockLevel"`
	Available  *int             `json:"Available"`
	Locations  []locationRecord `json:"Locations"`
}

type stockItemRecord struct {
	SKU        string           `json:"ItemNumber"`
	Title      string           `json:"ItemTitle"`
	Price      *decimal.Decimal `json:"RetailPrice"`
	StockLevel *int             `json:"StockLevel"`
	Barcode    string           `json:"BarcodeNumber"`
	Locations  []locationRecord `json:"StockLevels"`
}

type searchRequest struct {
	Keyword        string `json:"Keyword"`
	EntriesPerPage int    `json:"EntriesPerPage"`
}

type pageRequest struct {
	EntriesPerPage int `json:"EntriesPerPage"`
	PageNumber     int `json:"PageNumber"`
}

type itemsResponse struct {
	Items        []json.RawMessage `json:"Items"`
	TotalEntries int               `json:"TotalEntries"`
}

type historyResponse struct {
	Entries []struct {
		Date       string `json:"Date"`
		Level      *int   `json:"Level"`
		ChangeQty  *int   `json:"ChangeQty"`
		Note       string `json:"Note"`
		LocationID string `json:"StockLocationId"`
	} `json:"Entries"`
}

type locationsResponse struct {
	Locations []locationRecord `json:"Locations"`
}

type setStockLevelRequest struct {
	SKU        string `json:"SKU"`
	LocationID string `json:"LocationId"`
	Level      int    `json:"Level"`
}

type transferRequest struct {
	SKU            string `json:"SKU"`
	FromLocationID string `json:"FromLocationId"`
	ToLocationID   string `json:"ToLocationId"`
	Quantity       int    `json:"Quantity"`
}

type mutationResponse struct {
	Success bool   `json:"Success"`
	Message string `json:"Message"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func toLocations(recs []locationRecord) []model.CatalogLocation {
	if len(recs) == 0 {
		return nil
	}
	out := make([]model.CatalogLocation, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.CatalogLocation{
			LocationID:   r.LocationID,
			LocationCode: r.LocationCode,
			Quantity:     intOr(r.Quantity, 0),
		})
	}
	return out
}

// toCatalogItem converts a decoded record. It returns false when the record has no SKU.
func toCatalogItem(rec stockItemRecord, raw json.RawMessage) (model.CatalogItem, bool) {
	if rec.SKU == "" {
		return model.CatalogItem{}, false
	}
	item := model.CatalogItem{
		SKU:        rec.SKU,
		Title:      rec.Title,
		StockLevel: intOr(rec.StockLevel, 0),
		Barcode:    rec.Barcode,
		Locations:  toLocations(rec.Locations),
		Raw:        raw,
	}
	if rec.Price != nil {
		item.Price = *rec.Price
	}
	return item, true
}

// decodeItems decodes each raw item independently; undecodable or SKU-less entries are counted, not fatal.
func decodeItems(raws []json.RawMessage) (items []model.CatalogItem, skipped int) {
	items = make([]model.CatalogItem, 0, len(raws))
	for _, raw := range raws {
		var rec stockItemRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			continue
		}
		item, ok := toCatalogItem(rec, raw)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped
}
