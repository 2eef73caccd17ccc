package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"
)

const deltaColumns = `id, item_key, quantity_change, reason, source_id, state, previous_level, new_level,
	error_type, error_message, submitted_at, created_at, updated_at`

// SQLDeltaRepository implements DeltaRepository on SQLStore.
type SQLDeltaRepository struct {
	store *SQLStore
}

// Create inserts a new delta in the unsubmitted state unless a state is set.
func (r *SQLDeltaRepository) Create(ctx context.Context, d *model.StockDelta) error {
	if d.ID == "" {
		d.ID = uid.New()
	}
	if d.State == "" {
		d.State = model.DeltaUnsubmitted
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.store.exec(ctx, `
		INSERT INTO stock_deltas (`+deltaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ItemKey, d.QuantityChange, string(d.Reason), d.SourceID, string(d.State),
		nullInt(d.PreviousLevel), nullInt(d.NewLevel), d.ErrorType, nullString(d.ErrorMessage),
		nullTime(d.SubmittedAt), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stock delta: %w", err)
	}
	return nil
}

// Get returns the delta with the given id.
func (r *SQLDeltaRepository) Get(ctx context.Context, id string) (*model.StockDelta, error) {
	var d model.StockDelta
	var reason, state string
	var prev, next sql.NullInt64
	var errMsg sql.NullString
	var submitted sql.NullTime

	err := r.store.queryRow(ctx, "SELECT "+deltaColumns+" FROM stock_deltas WHERE id = ?", id).Scan(
		&d.ID, &d.ItemKey, &d.QuantityChange, &reason, &d.SourceID, &state, &prev, &next,
		&d.ErrorType, &errMsg, &submitted, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock delta: %w", err)
	}

	d.Reason = model.DeltaReason(reason)
	d.State = model.DeltaState(state)
	d.PreviousLevel = intPtr(prev)
	d.NewLevel = intPtr(next)
	d.ErrorMessage = errMsg.String
	d.SubmittedAt = timePtr(submitted)
	return &d, nil
}

// Save persists the sync state fields of d.
func (r *SQLDeltaRepository) Save(ctx context.Context, d *model.StockDelta) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.store.exec(ctx, `
		UPDATE stock_deltas
		SET state = ?, previous_level = ?, new_level = ?, error_type = ?, error_message = ?,
			submitted_at = ?, updated_at = ?
		WHERE id = ?
	`, string(d.State), nullInt(d.PreviousLevel), nullInt(d.NewLevel), d.ErrorType,
		nullString(d.ErrorMessage), nullTime(d.SubmittedAt), d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to save stock delta: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ DeltaRepository = (*SQLDeltaRepository)(nil)
