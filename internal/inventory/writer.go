package inventory

import (
	"context"

	"stocksync-api/internal/syncerr"
)

// Writer performs the mutating remote stock calls. It is kept apart from
// Reader so that catalog reads can never change remote state.
type Writer struct {
	client Requester
}

// NewWriter creates a stock writer.
func NewWriter(client Requester) *Writer {
	return &Writer{client: client}
}

// SetStockLevel sets the absolute stock level of sku at locationID.
func (w *Writer) SetStockLevel(ctx context.Context, sku, locationID string, level int) error {
	var resp mutationResponse
	req := setStockLevelRequest{SKU: sku, LocationID: locationID, Level: level}
	if err := w.client.Post(ctx, PathSetStockLevel, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return syncerr.RemoteServer("inventory.set_stock_level", 200, nonEmpty(resp.Message, "remote reported failure"))
	}
	return nil
}

// TransferStock moves quantity of sku between two remote locations.
func (w *Writer) TransferStock(ctx context.Context, sku, fromLocation, toLocation string, quantity int) error {
	var resp mutationResponse
	req := transferRequest{SKU: sku, FromLocationID: fromLocation, ToLocationID: toLocation, Quantity: quantity}
	if err := w.client.Post(ctx, PathTransferStock, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return syncerr.RemoteServer("inventory.transfer_stock", 200, nonEmpty(resp.Message, "remote reported failure"))
	}
	return nil
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
