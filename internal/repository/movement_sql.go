package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"
)

// SQLMovementRepository implements MovementRepository on SQLStore.
type SQLMovementRepository struct {
	store *SQLStore
}

// Create inserts a movement record.
func (r *SQLMovementRepository) Create(ctx context.Context, m *model.StockMovement) error {
	if m.ID == "" {
		m.ID = uid.New()
	}
	if m.MovedAt.IsZero() {
		m.MovedAt = time.Now().UTC()
	}

	_, err := r.store.exec(ctx, `
		INSERT INTO stock_movements (id, product_id, from_location, to_location, quantity, type, user_id, moved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProductID, m.FromLocation, m.ToLocation, m.Quantity, string(m.Type), m.UserID, m.MovedAt)
	if err != nil {
		return fmt.Errorf("failed to create stock movement: %w", err)
	}
	return nil
}

// Get returns the movement with the given id.
func (r *SQLMovementRepository) Get(ctx context.Context, id string) (*model.StockMovement, error) {
	var m model.StockMovement
	var typ string
	err := r.store.queryRow(ctx, `
		SELECT id, product_id, from_location, to_location, quantity, type, user_id, moved_at
		FROM stock_movements WHERE id = ?
	`, id).Scan(&m.ID, &m.ProductID, &m.FromLocation, &m.ToLocation, &m.Quantity, &typ, &m.UserID, &m.MovedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock movement: %w", err)
	}
	m.Type = model.MovementType(typ)
	return &m, nil
}

var _ MovementRepository = (*SQLMovementRepository)(nil)
