package repository

import (
	"context"

	"stocksync-api/internal/model"
)

// Not-found lookups return (nil, nil), matching the rest of the data layer.

// ProductRepository defines local product data access.
type ProductRepository interface {
	// FindByID returns the product with the given id.
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// FindBySKU returns the product with the given remote SKU.
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)

	// FindByBarcode matches code against the primary, secondary and tertiary barcode fields, in that order.
	FindByBarcode(ctx context.Context, code string) (*model.Product, error)

	// Create inserts a new product.
	Create(ctx context.Context, p *model.Product) error

	// Update persists all mutable fields of p.
	Update(ctx context.Context, p *model.Product) error
}

// DeltaRepository defines StockDelta data access.
type DeltaRepository interface {
	Create(ctx context.Context, d *model.StockDelta) error
	Get(ctx context.Context, id string) (*model.StockDelta, error)

	// Save persists the sync state fields of d.
	Save(ctx context.Context, d *model.StockDelta) error
}

// MovementRepository defines StockMovement data access. Movements are immutable.
type MovementRepository interface {
	Create(ctx context.Context, m *model.StockMovement) error
	Get(ctx context.Context, id string) (*model.StockMovement, error)
}

// PendingUpdateRepository defines PendingProductUpdate data access.
type PendingUpdateRepository interface {
	Create(ctx context.Context, u *model.PendingProductUpdate) error
	Get(ctx context.Context, id string) (*model.PendingProductUpdate, error)

	// FindPendingByProduct returns the open (pending) update for a product, if any.
	FindPendingByProduct(ctx context.Context, productID string) (*model.PendingProductUpdate, error)

	// UpdateChanges replaces the detected changes of a pending update.
	UpdateChanges(ctx context.Context, id string, changes model.Changes) error

	// Resolve moves a pending update to u.Status, recording reviewer and timestamps.
	// Returns ErrNotPending if the update has already left the pending state.
	Resolve(ctx context.Context, u *model.PendingProductUpdate) error

	// List returns updates with the given status (all when empty), newest first, plus the total count.
	List(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error)
}

// RepoError is a sentinel error type for the data layer.
type RepoError string

func (e RepoError) Error() string { return string(e) }

const (
	// ErrNotPending indicates a review transition on an update that is no longer pending.
	ErrNotPending RepoError = "update is not pending"
)
