package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"stocksync-api/internal/model"
	"stocksync-api/internal/repository"
)

var (
	// ErrUpdateNotFound is returned for an unknown update id.
	ErrUpdateNotFound = errors.New("pending update not found")
	// ErrNotPending is returned when reviewing an update that was already resolved.
	ErrNotPending = repository.ErrNotPending
)

// BulkResult reports a bulk review; one bad id never blocks the others.
type BulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// Approve applies a pending update's changes to its product and marks it approved.
func (r *Reconciler) Approve(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error) {
	u, err := r.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	product, err := r.products.FindByID(ctx, u.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("product %s of update %s no longer exists", u.ProductID, u.ID)
	}
	if err := product.Apply(u.ChangesDetected); err != nil {
		return nil, fmt.Errorf("failed to apply update %s: %w", u.ID, err)
	}
	if err := r.products.Update(ctx, product); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	u.Status = model.UpdateApproved
	u.ReviewerID = reviewerID
	u.ReviewedAt = &now
	u.AcceptedAt = &now
	if err := r.updates.Resolve(ctx, u); err != nil {
		return nil, err
	}

	log.Printf("[CatalogReconciler] Update %s approved by %s", u.ID, reviewerID)
	return u, nil
}

// Reject marks a pending update rejected without touching the product.
func (r *Reconciler) Reject(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error) {
	u, err := r.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	u.Status = model.UpdateRejected
	u.ReviewerID = reviewerID
	u.ReviewedAt = &now
	if err := r.updates.Resolve(ctx, u); err != nil {
		return nil, err
	}

	log.Printf("[CatalogReconciler] Update %s rejected by %s", u.ID, reviewerID)
	return u, nil
}

// BulkApprove approves each id independently.
func (r *Reconciler) BulkApprove(ctx context.Context, ids []string, reviewerID string) *BulkResult {
	return bulk(ids, func(id string) error {
		_, err := r.Approve(ctx, id, reviewerID)
		return err
	})
}

// BulkReject rejects each id independently.
func (r *Reconciler) BulkReject(ctx context.Context, ids []string, reviewerID string) *BulkResult {
	return bulk(ids, func(id string) error {
		_, err := r.Reject(ctx, id, reviewerID)
		return err
	})
}

// ListUpdates lists updates by status for the review UI.
func (r *Reconciler) ListUpdates(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error) {
	return r.updates.List(ctx, status, limit, offset)
}

func (r *Reconciler) pending(ctx context.Context, id string) (*model.PendingProductUpdate, error) {
	u, err := r.updates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUpdateNotFound
	}
	if u.Status != model.UpdatePending {
		return nil, ErrNotPending
	}
	return u, nil
}

func bulk(ids []string, fn func(id string) error) *BulkResult {
	res := &BulkResult{Succeeded: []string{}, Failed: map[string]string{}}
	for _, id := range ids {
		if err := fn(id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}
