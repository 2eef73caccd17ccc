package inventory

import (
	"context"
	"encoding/json"
	"log"

	"stocksync-api/internal/model"
)

// Requester is the subset of the remote client used by the reader and writer.
type Requester interface {
	Post(ctx context.Context, path string, payload, out interface{}) error
}

// Reader is the read-only view of the remote catalog.
//
// It must never expose a method that changes remote state: its results feed
// the review workflow. Methods return nil/empty when the remote answers with no
// usable data, and return client errors unchanged so callers can tell
// "no data" apart from "call failed".
type Reader struct {
	client Requester
}

// NewReader creates a catalog reader.
func NewReader(client Requester) *Reader {
	return &Reader{client: client}
}

// GetStockLevel returns the remote stock position of sku, or nil if the remote has none.
func (r *Reader) GetStockLevel(ctx context.Context, sku string) (*model.StockLevel, error) {
	var resp stockLevelResponse
	if err := r.client.Post(ctx, PathGetStockLevel, skuRequest{SKU: sku}, &resp); err != nil {
		return nil, err
	}
	if resp.StockLevel == nil {
		return nil, nil
	}
	if resp.SKU == "" {
		resp.SKU = sku
	}
	return &model.StockLevel{
		SKU:       resp.SKU,
		Level:     *resp.StockLevel,
		Available: intOr(resp.Available, *resp.StockLevel),
		Locations: toLocations(resp.Locations),
	}, nil
}

// SearchStockItems returns catalog items matching keyword.
func (r *Reader) SearchStockItems(ctx context.Context, keyword string) ([]model.CatalogItem, error) {
	var resp itemsResponse
	if err := r.client.Post(ctx, PathSearchStockItems, searchRequest{Keyword: keyword, EntriesPerPage: 100}, &resp); err != nil {
		return nil, err
	}
	items, skipped := decodeItems(resp.Items)
	if skipped > 0 {
		log.Printf("[InventoryReader] Search %q: skipped %d unreadable items", keyword, skipped)
	}
	return items, nil
}

// GetStockDetails returns the full catalog entry for sku, or nil if unknown.
func (r *Reader) GetStockDetails(ctx context.Context, sku string) (*model.CatalogItem, error) {
	var raw json.RawMessage
	if err := r.client.Post(ctx, PathGetStockItemDetails, skuRequest{SKU: sku}, &raw); err != nil {
		return nil, err
	}
	var rec stockItemRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil
	}
	item, ok := toCatalogItem(rec, raw)
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// GetStockItemHistory returns the remote change history of sku, oldest first as the remote orders it.
func (r *Reader) GetStockItemHistory(ctx context.Context, sku string) ([]model.StockHistoryEntry, error) {
	var resp historyResponse
	if err := r.client.Post(ctx, PathGetStockItemHistory, skuRequest{SKU: sku}, &resp); err != nil {
		return nil, err
	}
	entries := make([]model.StockHistoryEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, model.StockHistoryEntry{
			Date:       e.Date,
			Level:      intOr(e.Level, 0),
			ChangeQty:  intOr(e.ChangeQty, 0),
			Note:       e.Note,
			LocationID: e.LocationID,
		})
	}
	return entries, nil
}

// GetStockLocationsByProduct returns per-location quantities for sku.
func (r *Reader) GetStockLocationsByProduct(ctx context.Context, sku string) ([]model.CatalogLocation, error) {
	var resp locationsResponse
	if err := r.client.Post(ctx, PathGetLocationsByItem, skuRequest{SKU: sku}, &resp); err != nil {
		return nil, err
	}
	return toLocations(resp.Locations), nil
}

// FetchInventoryPage fetches one page (1-based) of the full catalog listing.
func (r *Reader) FetchInventoryPage(ctx context.Context, pageNumber, pageSize int) (*Page, error) {
	var resp itemsResponse
	req := pageRequest{EntriesPerPage: pageSize, PageNumber: pageNumber}
	if err := r.client.Post(ctx, PathGetStockItemsFull, req, &resp); err != nil {
		return nil, err
	}
	items, skipped := decodeItems(resp.Items)
	return &Page{
		Number:       pageNumber,
		Size:         pageSize,
		Items:        items,
		Received:     len(resp.Items),
		Skipped:      skipped,
		TotalEntries: resp.TotalEntries,
	}, nil
}

// GetFullInventory returns a lazy pager over the whole catalog.
func (r *Reader) GetFullInventory(pageSize int) *Pager {
	return NewPager(r, pageSize)
}
