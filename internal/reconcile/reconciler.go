// Package reconcile pulls the remote catalog into the local store for review.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"stocksync-api/internal/inventory"
	"stocksync-api/internal/model"
)

// ProductStore is the local product access the reconciler needs.
type ProductStore interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
	FindBySKU(ctx context.Context, sku string) (*model.Product, error)
	Create(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p *model.Product) error
}

// UpdateStore is the pending update access the reconciler needs.
type UpdateStore interface {
	Create(ctx context.Context, u *model.PendingProductUpdate) error
	Get(ctx context.Context, id string) (*model.PendingProductUpdate, error)
	FindPendingByProduct(ctx context.Context, productID string) (*model.PendingProductUpdate, error)
	UpdateChanges(ctx context.Context, id string, changes model.Changes) error
	Resolve(ctx context.Context, u *model.PendingProductUpdate) error
	List(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error)
}

// Config holds reconciliation settings.
type Config struct {
	PageSize   int
	MaxPages   int
	SafeFields []string
}

// Action is the classification of one remote catalog item.
type Action string

const (
	ActionNone       Action = "none"
	ActionCreate     Action = "create"
	ActionAutoAccept Action = "auto_accept"
	ActionQueue      Action = "queue"
)

// Decision is the classified outcome for one catalog item. Dry and live runs
// over the same catalog produce identical decisions.
type Decision struct {
	SKU       string        `json:"sku"`
	Action    Action        `json:"action"`
	ProductID string        `json:"product_id,omitempty"`
	Changes   model.Changes `json:"changes,omitempty"`
}

// ItemError records one item that could not be processed.
type ItemError struct {
	SKU     string `json:"sku,omitempty"`
	Page    int    `json:"page"`
	Message string `json:"message"`
}

// Summary aggregates one reconciliation pass.
type Summary struct {
	DryRun       bool        `json:"dry_run"`
	Pages        int         `json:"pages"`
	Processed    int         `json:"processed"`
	Created      int         `json:"created"`
	Queued       int         `json:"queued"`
	AutoAccepted int         `json:"auto_accepted"`
	Unchanged    int         `json:"unchanged"`
	Errors       int         `json:"errors"`
	Truncated    bool        `json:"truncated"`
	Decisions    []Decision  `json:"decisions"`
	ItemErrors   []ItemError `json:"item_errors,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// Reconciler diffs the remote catalog against local products.
type Reconciler struct {
	catalog  inventory.PageFetcher
	products ProductStore
	updates  UpdateStore
	cfg      Config
	safe     map[string]bool
	now      func() time.Time
}

// NewReconciler creates a catalog reconciler.
func NewReconciler(catalog inventory.PageFetcher, products ProductStore, updates UpdateStore, cfg Config) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 500
	}
	safe := make(map[string]bool, len(cfg.SafeFields))
	for _, f := range cfg.SafeFields {
		safe[f] = true
	}
	return &Reconciler{
		catalog:  catalog,
		products: products,
		updates:  updates,
		cfg:      cfg,
		safe:     safe,
		now:      time.Now,
	}
}

// Run performs one pass over the catalog. In dry-run mode nothing local is written.
//
// A failing item is counted and skipped. A failing page fetch ends the pass; the
// summary so far is returned together with the error.
func (r *Reconciler) Run(ctx context.Context, dryRun bool) (*Summary, error) {
	s := &Summary{DryRun: dryRun, StartedAt: r.now().UTC(), Decisions: []Decision{}}
	log.Printf("[CatalogReconciler] Starting pass (dry_run=%v, page_size=%d, max_pages=%d)", dryRun, r.cfg.PageSize, r.cfg.MaxPages)

	pager := inventory.NewPager(r.catalog, r.cfg.PageSize)
	for {
		if s.Pages >= r.cfg.MaxPages {
			s.Truncated = true
			log.Printf("[CatalogReconciler] Stopped at max pages (%d)", r.cfg.MaxPages)
			break
		}

		page, err := pager.Next(ctx)
		if err != nil {
			s.FinishedAt = r.now().UTC()
			return s, fmt.Errorf("failed to fetch catalog page %d: %w", pager.Cursor(), err)
		}
		if page == nil {
			break
		}
		s.Pages++

		for i := 0; i < page.Skipped; i++ {
			s.Errors++
			s.ItemErrors = append(s.ItemErrors, ItemError{Page: page.Number, Message: "unreadable catalog item"})
		}

		for _, item := range page.Items {
			s.Processed++
			d, err := r.processItem(ctx, item, dryRun)
			if err != nil {
				s.Errors++
				s.ItemErrors = append(s.ItemErrors, ItemError{SKU: item.SKU, Page: page.Number, Message: err.Error()})
				log.Printf("[CatalogReconciler] Item %s failed: %v", item.SKU, err)
				continue
			}
			s.count(d)
		}

		if page.Last() {
			break
		}
	}

	s.FinishedAt = r.now().UTC()
	log.Printf("[CatalogReconciler] Pass complete: pages=%d processed=%d created=%d queued=%d auto_accepted=%d unchanged=%d errors=%d",
		s.Pages, s.Processed, s.Created, s.Queued, s.AutoAccepted, s.Unchanged, s.Errors)
	return s, nil
}

func (s *Summary) count(d Decision) {
	switch d.Action {
	case ActionNone:
		s.Unchanged++
		return
	case ActionCreate:
		s.Created++
	case ActionAutoAccept:
		s.AutoAccepted++
	case ActionQueue:
		s.Queued++
	}
	s.Decisions = append(s.Decisions, d)
}

// processItem classifies one item and, unless dryRun, applies the decision.
// Panics are turned into item errors so one bad record cannot end the pass.
func (r *Reconciler) processItem(ctx context.Context, item model.CatalogItem, dryRun bool) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while reconciling %s: %v", item.SKU, rec)
		}
	}()

	if item.SKU == "" {
		return Decision{}, fmt.Errorf("catalog item has no sku")
	}

	local, err := r.products.FindBySKU(ctx, item.SKU)
	if err != nil {
		return Decision{}, err
	}

	d = r.classify(local, item)
	if dryRun {
		return d, nil
	}
	if err := r.apply(ctx, d, local, item); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// classify is the single decision path shared by dry and live runs.
func (r *Reconciler) classify(local *model.Product, item model.CatalogItem) Decision {
	if local == nil {
		return Decision{SKU: item.SKU, Action: ActionCreate}
	}

	d := Decision{SKU: item.SKU, ProductID: local.ID, Action: ActionNone}
	changes := Diff(local, item)
	if len(changes) == 0 {
		return d
	}

	d.Changes = changes
	d.Action = ActionAutoAccept
	for field := range changes {
		if !r.safe[field] {
			d.Action = ActionQueue
			break
		}
	}
	return d
}

// Diff compares the watched fields of a local product and a remote item.
// An empty remote barcode is not treated as a change.
func Diff(local *model.Product, item model.CatalogItem) model.Changes {
	changes := model.Changes{}
	if local.Name != item.Title {
		changes[model.FieldName] = model.FieldChange{Local: local.Name, Remote: item.Title}
	}
	if !local.Price.Equal(item.Price) {
		changes[model.FieldPrice] = model.FieldChange{Local: local.Price.String(), Remote: item.Price.String()}
	}
	if local.StockLevel != item.StockLevel {
		changes[model.FieldStockLevel] = model.FieldChange{
			Local:  strconv.Itoa(local.StockLevel),
			Remote: strconv.Itoa(item.StockLevel),
		}
	}
	if item.Barcode != "" && local.Barcode != item.Barcode {
		changes[model.FieldBarcode] = model.FieldChange{Local: local.Barcode, Remote: item.Barcode}
	}
	return changes
}

func (r *Reconciler) apply(ctx context.Context, d Decision, local *model.Product, item model.CatalogItem) error {
	switch d.Action {
	case ActionCreate:
		p := &model.Product{
			SKU:        item.SKU,
			Name:       item.Title,
			Price:      item.Price,
			StockLevel: item.StockLevel,
			Barcode:    item.Barcode,
		}
		if err := r.products.Create(ctx, p); err != nil {
			return err
		}
		log.Printf("[CatalogReconciler] Created product %s", item.SKU)

	case ActionAutoAccept:
		if err := local.Apply(d.Changes); err != nil {
			return err
		}
		// The audit record is written before the product changes.
		now := r.now().UTC()
		if err := r.updates.Create(ctx, &model.PendingProductUpdate{
			ProductID:       local.ID,
			ChangesDetected: d.Changes,
			Status:          model.UpdateAutoAccepted,
			AcceptedAt:      &now,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		return r.products.Update(ctx, local)

	case ActionQueue:
		existing, err := r.updates.FindPendingByProduct(ctx, local.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if sameChanges(existing.ChangesDetected, d.Changes) {
				return nil
			}
			return r.updates.UpdateChanges(ctx, existing.ID, d.Changes)
		}
		return r.updates.Create(ctx, &model.PendingProductUpdate{
			ProductID:       local.ID,
			ChangesDetected: d.Changes,
			Status:          model.UpdatePending,
			CreatedAt:       r.now().UTC(),
		})
	}
	return nil
}

func sameChanges(a, b model.Changes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
