package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"
)

const productColumns = `id, sku, name, price, stock_level, barcode, barcode_2, barcode_3, last_synced_at, created_at, updated_at`

// SQLProductRepository implements ProductRepository on SQLStore.
type SQLProductRepository struct {
	store *SQLStore
}

func scanProduct(row interface{ Scan(...interface{}) error }) (*model.Product, error) {
	var p model.Product
	var lastSynced sql.NullTime
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.StockLevel,
		&p.Barcode, &p.Barcode2, &p.Barcode3, &lastSynced, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LastSyncedAt = timePtr(lastSynced)
	return &p, nil
}

func (r *SQLProductRepository) findOne(ctx context.Context, where string, arg interface{}) (*model.Product, error) {
	row := r.store.queryRow(ctx, "SELECT "+productColumns+" FROM products WHERE "+where, arg)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return p, nil
}

// FindByID returns the product with the given id.
func (r *SQLProductRepository) FindByID(ctx context.Context, id string) (*model.Product, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySKU returns the product with the given SKU.
func (r *SQLProductRepository) FindBySKU(ctx context.Context, sku string) (*model.Product, error) {
	return r.findOne(ctx, "sku = ?", sku)
}

// FindByBarcode tries barcode, barcode_2 and barcode_3 in order.
func (r *SQLProductRepository) FindByBarcode(ctx context.Context, code string) (*model.Product, error) {
	if code == "" {
		return nil, nil
	}
	for _, col := range []string{"barcode", "barcode_2", "barcode_3"} {
		p, err := r.findOne(ctx, col+" = ?", code)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, nil
}

// Create inserts a new product, assigning an id and timestamps when unset.
func (r *SQLProductRepository) Create(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.store.exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SKU, p.Name, p.Price.String(), p.StockLevel, p.Barcode, p.Barcode2, p.Barcode3,
		nullTime(p.LastSyncedAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update persists all mutable fields of p.
func (r *SQLProductRepository) Update(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.store.exec(ctx, `
		UPDATE products
		SET name = ?, price = ?, stock_level = ?, barcode = ?, barcode_2 = ?, barcode_3 = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Price.String(), p.StockLevel, p.Barcode, p.Barcode2, p.Barcode3,
		nullTime(p.LastSyncedAt), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update product: %s not found", p.ID)
	}
	return nil
}

var _ ProductRepository = (*SQLProductRepository)(nil)
