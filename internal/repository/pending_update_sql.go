package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"
)

const pendingColumns = `id, product_id, changes_detected, status, reviewer_id, reviewed_at, accepted_at, created_at`

// SQLPendingUpdateRepository implements PendingUpdateRepository on SQLStore.
type SQLPendingUpdateRepository struct {
	store *SQLStore
}

func scanPending(row interface{ Scan(...interface{}) error }) (*model.PendingProductUpdate, error) {
	var u model.PendingProductUpdate
	var changes, status string
	var reviewed, accepted sql.NullTime

	if err := row.Scan(&u.ID, &u.ProductID, &changes, &status, &u.ReviewerID, &reviewed, &accepted, &u.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(changes), &u.ChangesDetected); err != nil {
		return nil, fmt.Errorf("failed to decode changes of update %s: %w", u.ID, err)
	}
	u.Status = model.UpdateStatus(status)
	u.ReviewedAt = timePtr(reviewed)
	u.AcceptedAt = timePtr(accepted)
	return &u, nil
}

// Create inserts a new update record.
func (r *SQLPendingUpdateRepository) Create(ctx context.Context, u *model.PendingProductUpdate) error {
	if u.ID == "" {
		u.ID = uid.New()
	}
	if u.Status == "" {
		u.Status = model.UpdatePending
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	changes, err := json.Marshal(u.ChangesDetected)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}

	_, err = r.store.exec(ctx, `
		INSERT INTO pending_product_updates (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.ProductID, string(changes), string(u.Status), u.ReviewerID,
		nullTime(u.ReviewedAt), nullTime(u.AcceptedAt), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending update: %w", err)
	}
	return nil
}

// Get returns the update with the given id.
func (r *SQLPendingUpdateRepository) Get(ctx context.Context, id string) (*model.PendingProductUpdate, error) {
	u, err := scanPending(r.store.queryRow(ctx, "SELECT "+pendingColumns+" FROM pending_product_updates WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending update: %w", err)
	}
	return u, nil
}

// FindPendingByProduct returns the newest pending update for the product.
func (r *SQLPendingUpdateRepository) FindPendingByProduct(ctx context.Context, productID string) (*model.PendingProductUpdate, error) {
	u, err := scanPending(r.store.queryRow(ctx, `
		SELECT `+pendingColumns+` FROM pending_product_updates
		WHERE product_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, productID, string(model.UpdatePending)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending update: %w", err)
	}
	return u, nil
}

// UpdateChanges replaces the changes of a still-pending update.
func (r *SQLPendingUpdateRepository) UpdateChanges(ctx context.Context, id string, changes model.Changes) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	res, err := r.store.exec(ctx, `
		UPDATE pending_product_updates SET changes_detected = ?
		WHERE id = ? AND status = ?
	`, string(raw), id, string(model.UpdatePending))
	if err != nil {
		return fmt.Errorf("failed to update changes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotPending
	}
	return nil
}

// Resolve applies a review transition guarded on the pending status.
func (r *SQLPendingUpdateRepository) Resolve(ctx context.Context, u *model.PendingProductUpdate) error {
	res, err := r.store.exec(ctx, `
		UPDATE pending_product_updates
		SET status = ?, reviewer_id = ?, reviewed_at = ?, accepted_at = ?
		WHERE id = ? AND status = ?
	`, string(u.Status), u.ReviewerID, nullTime(u.ReviewedAt), nullTime(u.AcceptedAt),
		u.ID, string(model.UpdatePending))
	if err != nil {
		return fmt.Errorf("failed to resolve pending update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve pending update: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// List returns updates with the given status, newest first.
func (r *SQLPendingUpdateRepository) List(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []interface{}{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, string(status))
	}

	var total int64
	if err := r.store.queryRow(ctx, "SELECT COUNT(*) FROM pending_product_updates"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pending updates: %w", err)
	}

	rows, err := r.store.query(ctx,
		"SELECT "+pendingColumns+" FROM pending_product_updates"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending updates: %w", err)
	}
	defer rows.Close()

	var updates []model.PendingProductUpdate
	for rows.Next() {
		u, err := scanPending(rows)
		if err != nil {
			return nil, 0, err
		}
		updates = append(updates, *u)
	}
	return updates, total, rows.Err()
}

var _ PendingUpdateRepository = (*SQLPendingUpdateRepository)(nil)
