package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"stocksync-api/internal/model"
	"stocksync-api/internal/reconcile"
	"stocksync-api/pkg/apierror"
	"stocksync-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// CatalogReconciler runs reconciliation passes and reviews their pending updates.
type CatalogReconciler interface {
	Run(ctx context.Context, dryRun bool) (*reconcile.Summary, error)
	Approve(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error)
	Reject(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error)
	BulkApprove(ctx context.Context, ids []string, reviewerID string) *reconcile.BulkResult
	BulkReject(ctx context.Context, ids []string, reviewerID string) *reconcile.BulkResult
	ListUpdates(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error)
}

// ReconcileEnqueuer queues a background reconciliation pass.
type ReconcileEnqueuer interface {
	Enqueue(ctx context.Context, dryRun bool) (*model.SyncTask, error)
}

// ReconcileHandler handles catalog reconciliation and review requests.
type ReconcileHandler struct {
	reconciler CatalogReconciler
	scheduler  ReconcileEnqueuer
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(reconciler CatalogReconciler, scheduler ReconcileEnqueuer) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, scheduler: scheduler}
}

// Run handles POST /api/v1/reconcile?dry_run=bool
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	dryRun, err := boolQuery(r, "dry_run")
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.reconciler.Run(r.Context(), dryRun)
	if err != nil {
		if summary == nil {
			writeError(w, err)
			return
		}
		// A pass that stopped early still reports what it did.
		status := http.StatusInternalServerError
		var apiErr *apierror.Error
		if errors.As(toAPIError(err), &apiErr) {
			status = apiErr.StatusCode
		}
		response.JSON(w, status, map[string]interface{}{
			"summary": summary,
			"error":   err.Error(),
		})
		return
	}

	response.OK(w, summary)
}

// Enqueue handles POST /api/v1/reconcile/enqueue?dry_run=bool
func (h *ReconcileHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	dryRun, err := boolQuery(r, "dry_run")
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := h.scheduler.Enqueue(r.Context(), dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	if task == nil {
		response.OK(w, map[string]interface{}{"queued": false, "reason": "a pass is already queued"})
		return
	}

	response.Accepted(w, map[string]interface{}{"queued": true, "task_id": task.ID})
}

// ListUpdates handles GET /api/v1/pending-updates?status=&page=&limit=
func (h *ReconcileHandler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	status := model.UpdateStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, apierror.ValidationError("unknown status",
			apierror.FieldError{Field: "status", Message: "must be pending, auto_accepted, approved or rejected"}))
		return
	}

	page, limit := pagination(r)
	updates, total, err := h.reconciler.ListUpdates(r.Context(), status, limit, (page-1)*limit)
	if err != nil {
		writeError(w, err)
		return
	}

	response.JSONWithMeta(w, http.StatusOK, updates, page, limit, total)
}

type reviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

type bulkReviewRequest struct {
	IDs        []string `json:"ids"`
	ReviewerID string   `json:"reviewer_id"`
}

// Approve handles POST /api/v1/pending-updates/{id}/approve
func (h *ReconcileHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.reconciler.Approve)
}

// Reject handles POST /api/v1/pending-updates/{id}/reject
func (h *ReconcileHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.reconciler.Reject)
}

func (h *ReconcileHandler) review(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error)) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReviewerID == "" {
		writeError(w, apierror.ValidationError("reviewer_id is required"))
		return
	}

	update, err := fn(r.Context(), chi.URLParam(r, "id"), req.ReviewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, update)
}

// BulkApprove handles POST /api/v1/pending-updates/bulk-approve
func (h *ReconcileHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	h.bulkReview(w, r, h.reconciler.BulkApprove)
}

// BulkReject handles POST /api/v1/pending-updates/bulk-reject
func (h *ReconcileHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	h.bulkReview(w, r, h.reconciler.BulkReject)
}

func (h *ReconcileHandler) bulkReview(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ids []string, reviewerID string) *reconcile.BulkResult) {
	var req bulkReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReviewerID == "" || len(req.IDs) == 0 {
		writeError(w, apierror.ValidationError("ids and reviewer_id are required"))
		return
	}

	response.OK(w, fn(r.Context(), req.IDs, req.ReviewerID))
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apierror.BadRequest(name + " must be a boolean")
	}
	return v, nil
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}
