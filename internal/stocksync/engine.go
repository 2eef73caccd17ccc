// Package stocksync reconciles locally recorded stock deltas and movements against the remote inventory.
package stocksync

import (
	"context"
	"fmt"
	"log"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/internal/syncerr"
)

// ProductFinder resolves local products.
type ProductFinder interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
	FindByBarcode(ctx context.Context, code string) (*model.Product, error)
	Update(ctx context.Context, p *model.Product) error
}

// DeltaStore loads and persists stock deltas.
type DeltaStore interface {
	Get(ctx context.Context, id string) (*model.StockDelta, error)
	Save(ctx context.Context, d *model.StockDelta) error
}

// MovementStore loads stock movements.
type MovementStore interface {
	Get(ctx context.Context, id string) (*model.StockMovement, error)
}

// StockReader reads remote stock levels.
type StockReader interface {
	GetStockLevel(ctx context.Context, sku string) (*model.StockLevel, error)
}

// StockWriter mutates remote stock.
type StockWriter interface {
	SetStockLevel(ctx context.Context, sku, locationID string, level int) error
	TransferStock(ctx context.Context, sku, fromLocation, toLocation string, quantity int) error
}

// Config holds engine settings.
type Config struct {
	DefaultLocation string
	// SerializeItems holds a per-item lock across the read-modify-write.
	// Off by default: concurrent deltas for one item race, last write wins.
	SerializeItems bool
}

// Engine applies one delta or movement to the remote system.
type Engine struct {
	products        ProductFinder
	deltas          DeltaStore
	movements       MovementStore
	reader          StockReader
	writer          StockWriter
	defaultLocation string
	locks           *keyedMutex
	now             func() time.Time
}

// NewEngine creates a stock sync engine.
func NewEngine(products ProductFinder, deltas DeltaStore, movements MovementStore, reader StockReader, writer StockWriter, cfg Config) *Engine {
	e := &Engine{
		products:        products,
		deltas:          deltas,
		movements:       movements,
		reader:          reader,
		writer:          writer,
		defaultLocation: cfg.DefaultLocation,
		now:             time.Now,
	}
	if cfg.SerializeItems {
		e.locks = newKeyedMutex()
	}
	return e
}

// Result describes the outcome of a successful delta sync.
type Result struct {
	DeltaID       string `json:"delta_id"`
	SKU           string `json:"sku,omitempty"`
	PreviousLevel int    `json:"previous_level"`
	NewLevel      int    `json:"new_level"`
	AlreadySynced bool   `json:"already_synced"`
}

// NextLevel applies a delta to the current level, never going below zero.
func NextLevel(current, change int, reason model.DeltaReason) int {
	next := current + change
	if reason == model.ReasonDecrease {
		next = current - change
	}
	if next < 0 {
		return 0
	}
	return next
}

// SyncDelta loads a delta by id and syncs it.
func (e *Engine) SyncDelta(ctx context.Context, id string) (*Result, error) {
	d, err := e.deltas.Get(ctx, id)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindInternal, "sync delta", err)
	}
	if d == nil {
		return nil, syncerr.Validation("sync delta", fmt.Sprintf("stock delta %s not found", id))
	}
	return e.Sync(ctx, d)
}

// Sync reconciles d against the remote stock level and records the outcome on d.
// A synced delta is never re-applied. Every other path ends with d synced or failed.
func (e *Engine) Sync(ctx context.Context, d *model.StockDelta) (*Result, error) {
	if d.IsSynced() {
		return &Result{DeltaID: d.ID, AlreadySynced: true}, nil
	}

	if err := validateDelta(d); err != nil {
		return nil, e.fail(ctx, d, err)
	}

	d.State = model.DeltaSubmitted
	d.ErrorType = ""
	d.ErrorMessage = ""
	if err := e.deltas.Save(ctx, d); err != nil {
		return nil, syncerr.Wrap(syncerr.KindInternal, "sync delta", fmt.Errorf("failed to mark submitted: %w", err))
	}

	product, res, err := e.apply(ctx, d)
	if err != nil {
		return nil, e.fail(ctx, d, err)
	}

	completed := e.now().UTC()
	d.State = model.DeltaSynced
	d.PreviousLevel = &res.PreviousLevel
	d.NewLevel = &res.NewLevel
	d.SubmittedAt = &completed
	if err := e.deltas.Save(context.WithoutCancel(ctx), d); err != nil {
		// The remote write has happened; retrying would apply the delta twice.
		log.Printf("[StockSyncEngine] Delta %s applied remotely but not recorded: %v", d.ID, err)
		return res, syncerr.Wrap(syncerr.KindAlreadySynced, "sync delta", err)
	}

	product.StockLevel = res.NewLevel
	product.LastSyncedAt = &completed
	if err := e.products.Update(ctx, product); err != nil {
		log.Printf("[StockSyncEngine] Failed to refresh local stock for %s: %v", product.SKU, err)
	}

	log.Printf("[StockSyncEngine] Delta %s synced: %s %d -> %d", d.ID, res.SKU, res.PreviousLevel, res.NewLevel)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, d *model.StockDelta) (*model.Product, *Result, error) {
	const op = "sync delta"

	product, err := e.products.FindByBarcode(ctx, d.ItemKey)
	if err != nil {
		return nil, nil, syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	if product == nil {
		return nil, nil, syncerr.Unresolved(op, d.ItemKey)
	}
	defer e.lockItem(product.SKU)()

	level, err := e.reader.GetStockLevel(ctx, product.SKU)
	if err != nil {
		return nil, nil, err
	}
	if level == nil {
		return nil, nil, syncerr.New(syncerr.KindUnresolvedItem, op, fmt.Sprintf("sku %q not found on remote", product.SKU))
	}

	next := NextLevel(level.Level, d.QuantityChange, d.Reason)
	if err := e.writer.SetStockLevel(ctx, product.SKU, e.defaultLocation, next); err != nil {
		return nil, nil, err
	}

	return product, &Result{
		DeltaID:       d.ID,
		SKU:           product.SKU,
		PreviousLevel: level.Level,
		NewLevel:      next,
	}, nil
}

// lockItem serializes remote read-modify-write per SKU when enabled.
func (e *Engine) lockItem(sku string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(sku)
}

// fail records err on d and returns it.
func (e *Engine) fail(ctx context.Context, d *model.StockDelta, err error) error {
	d.State = model.DeltaFailed
	d.ErrorType = string(syncerr.KindOf(err))
	d.ErrorMessage = err.Error()
	d.SubmittedAt = nil
	if saveErr := e.deltas.Save(context.WithoutCancel(ctx), d); saveErr != nil {
		log.Printf("[StockSyncEngine] Failed to record failure of delta %s: %v", d.ID, saveErr)
	}
	log.Printf("[StockSyncEngine] Delta %s failed: %v", d.ID, err)
	return err
}

func validateDelta(d *model.StockDelta) error {
	const op = "sync delta"
	if d.ItemKey == "" {
		return syncerr.Validation(op, "item key is required")
	}
	if !d.Reason.Valid() {
		return syncerr.Validation(op, fmt.Sprintf("invalid reason %q", d.Reason))
	}
	return nil
}

// SyncMovement issues a remote transfer for a recorded movement into the default location.
// Movements are not clamped; the remote rejects transfers it cannot cover.
func (e *Engine) SyncMovement(ctx context.Context, id string) error {
	const op = "sync movement"

	m, err := e.movements.Get(ctx, id)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	if m == nil {
		return syncerr.Validation(op, fmt.Sprintf("stock movement %s not found", id))
	}
	if m.Quantity <= 0 {
		return syncerr.Validation(op, fmt.Sprintf("movement %s has non-positive quantity %d", m.ID, m.Quantity))
	}

	product, err := e.products.FindByID(ctx, m.ProductID)
	if err != nil {
		return syncerr.Wrap(syncerr.KindInternal, op, err)
	}
	if product == nil {
		return syncerr.Unresolved(op, m.ProductID)
	}

	defer e.lockItem(product.SKU)()

	if err := e.writer.TransferStock(ctx, product.SKU, m.FromLocation, e.defaultLocation, m.Quantity); err != nil {
		log.Printf("[StockSyncEngine] Movement %s failed: %v", m.ID, err)
		return err
	}

	log.Printf("[StockSyncEngine] Movement %s synced: %d x %s from %s", m.ID, m.Quantity, product.SKU, m.FromLocation)
	return nil
}
