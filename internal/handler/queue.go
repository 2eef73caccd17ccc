package handler

import (
	"context"
	"net/http"

	"stocksync-api/internal/model"
	"stocksync-api/internal/supervisor"
	"stocksync-api/pkg/apierror"
	"stocksync-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// QueueSupervisor exposes queue health and dead-letter operations.
type QueueSupervisor interface {
	Health(ctx context.Context) (*supervisor.Health, error)
	Recommendations(ctx context.Context) ([]supervisor.Recommendation, error)
	FailedTasks(ctx context.Context) ([]model.SyncTask, error)
	RetryTask(ctx context.Context, id string) error
	RetryAllOfType(ctx context.Context, errType string) (int, error)
	PurgeFailed(ctx context.Context, actor string) (int64, error)
}

// QueueHandler handles sync queue supervision requests.
type QueueHandler struct {
	supervisor QueueSupervisor
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(s QueueSupervisor) *QueueHandler {
	return &QueueHandler{supervisor: s}
}

// Health handles GET /api/v1/queue/health
func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.supervisor.Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, health)
}

// Recommendations handles GET /api/v1/queue/recommendations
func (h *QueueHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.supervisor.Recommendations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, recs)
}

// Failed handles GET /api/v1/queue/failed
func (h *QueueHandler) Failed(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.supervisor.FailedTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, tasks)
}

// RetryTask handles POST /api/v1/queue/failed/{id}/retry
func (h *QueueHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.supervisor.RetryTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"retried": id})
}

// RetryAll handles POST /api/v1/queue/failed/retry?type=
func (h *QueueHandler) RetryAll(w http.ResponseWriter, r *http.Request) {
	errType := r.URL.Query().Get("type")
	if errType == "" {
		writeError(w, apierror.ValidationError("type is required",
			apierror.FieldError{Field: "type", Message: "error type to retry, e.g. connection"}))
		return
	}

	n, err := h.supervisor.RetryAllOfType(r.Context(), errType)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"type": errType, "retried": n})
}

// Purge handles DELETE /api/v1/queue/failed?confirm=true
func (h *QueueHandler) Purge(w http.ResponseWriter, r *http.Request) {
	confirmed, err := boolQuery(r, "confirm")
	if err != nil {
		writeError(w, err)
		return
	}
	if !confirmed {
		writeError(w, apierror.BadRequest("purging failed tasks requires confirm=true").
			WithDetails(apierror.FieldError{Field: "confirm", Message: "must be true"}))
		return
	}

	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "api"
	}
	n, err := h.supervisor.PurgeFailed(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"purged": n})
}
