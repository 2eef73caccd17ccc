package service

import (
	"context"
	"fmt"
	"log"

	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/syncerr"
)

// DeltaCreator persists new stock deltas.
type DeltaCreator interface {
	Create(ctx context.Context, d *model.StockDelta) error
}

// MovementCreator persists new stock movements.
type MovementCreator interface {
	Create(ctx context.Context, m *model.StockMovement) error
}

// ProductLookup finds products by id.
type ProductLookup interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
}

// StockEventService records local stock events and queues them for remote sync.
type StockEventService struct {
	deltas    DeltaCreator
	movements MovementCreator
	products  ProductLookup
	queue     queue.Queue
}

// NewStockEventService creates a new stock event service.
func NewStockEventService(deltas DeltaCreator, movements MovementCreator, products ProductLookup, q queue.Queue) *StockEventService {
	return &StockEventService{
		deltas:    deltas,
		movements: movements,
		products:  products,
		queue:     q,
	}
}

// ScanInput is one barcode scan.
type ScanInput struct {
	ItemKey  string            `json:"item_key"`
	Quantity int               `json:"quantity"`
	Reason   model.DeltaReason `json:"reason"`
	SourceID string            `json:"source_id,omitempty"`
}

// MovementInput is one physical stock transfer.
type MovementInput struct {
	ProductID    string             `json:"product_id"`
	FromLocation string             `json:"from_location"`
	ToLocation   string             `json:"to_location,omitempty"`
	Quantity     int                `json:"quantity"`
	Type         model.MovementType `json:"type,omitempty"`
	UserID       string             `json:"user_id"`
}

// RecordScan stores a scan as an unsubmitted delta and queues its sync.
func (s *StockEventService) RecordScan(ctx context.Context, in ScanInput) (*model.StockDelta, *model.SyncTask, error) {
	const op = "record scan"
	if in.ItemKey == "" {
		return nil, nil, syncerr.Validation(op, "item_key is required")
	}
	if in.Quantity <= 0 {
		return nil, nil, syncerr.Validation(op, "quantity must be positive")
	}
	if !in.Reason.Valid() {
		return nil, nil, syncerr.Validation(op, fmt.Sprintf("reason must be increase or decrease, got %q", in.Reason))
	}

	d := &model.StockDelta{
		ItemKey:        in.ItemKey,
		QuantityChange: in.Quantity,
		Reason:         in.Reason,
		SourceID:       in.SourceID,
		State:          model.DeltaUnsubmitted,
	}
	if err := s.deltas.Create(ctx, d); err != nil {
		return nil, nil, fmt.Errorf("failed to save scan: %w", err)
	}

	task := &model.SyncTask{Type: model.TaskStockDelta, SubjectID: d.ID}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return d, nil, fmt.Errorf("failed to queue delta %s: %w", d.ID, err)
	}

	log.Printf("[StockEventService] Scan %s (%s %d) queued as task %s", d.ItemKey, d.Reason, d.QuantityChange, task.ID)
	return d, task, nil
}

// RecordMovement stores a movement and queues the remote transfer.
func (s *StockEventService) RecordMovement(ctx context.Context, in MovementInput) (*model.StockMovement, *model.SyncTask, error) {
	const op = "record movement"
	if in.ProductID == "" {
		return nil, nil, syncerr.Validation(op, "product_id is required")
	}
	if in.Quantity <= 0 {
		return nil, nil, syncerr.Validation(op, "quantity must be positive")
	}
	if in.Type == "" {
		in.Type = model.MovementBayRefill
	}
	if !in.Type.Valid() {
		return nil, nil, syncerr.Validation(op, fmt.Sprintf("unknown movement type %q", in.Type))
	}

	product, err := s.products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, nil, syncerr.Validation(op, fmt.Sprintf("product %s not found", in.ProductID))
	}

	m := &model.StockMovement{
		ProductID:    in.ProductID,
		FromLocation: in.FromLocation,
		ToLocation:   in.ToLocation,
		Quantity:     in.Quantity,
		Type:         in.Type,
		UserID:       in.UserID,
	}
	if err := s.movements.Create(ctx, m); err != nil {
		return nil, nil, fmt.Errorf("failed to save movement: %w", err)
	}

	task := &model.SyncTask{Type: model.TaskStockMovement, SubjectID: m.ID}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return m, nil, fmt.Errorf("failed to queue movement %s: %w", m.ID, err)
	}

	log.Printf("[StockEventService] Movement %s (%d x %s) queued as task %s", m.ID, m.Quantity, product.SKU, task.ID)
	return m, task, nil
}
