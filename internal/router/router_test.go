package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync-api/internal/handler"
	"stocksync-api/internal/middleware"
	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/reconcile"
	"stocksync-api/internal/service"
	"stocksync-api/internal/supervisor"
	"stocksync-api/internal/syncerr"
)

const testKey = "secret"

type stubDeltas struct{}

func (stubDeltas) Create(ctx context.Context, d *model.StockDelta) error {
	d.ID = "delta-1"
	return nil
}

type stubMovements struct{}

func (stubMovements) Create(ctx context.Context, m *model.StockMovement) error {
	m.ID = "mov-1"
	return nil
}

type stubProducts struct{}

func (stubProducts) FindByID(ctx context.Context, id string) (*model.Product, error) {
	return &model.Product{ID: id, SKU: "SKU-" + id}, nil
}

type stubReconciler struct {
	runErr   error
	approved []string
}

func (s *stubReconciler) Run(ctx context.Context, dryRun bool) (*reconcile.Summary, error) {
	return &reconcile.Summary{DryRun: dryRun, Pages: 1, Decisions: []reconcile.Decision{}}, s.runErr
}

func (s *stubReconciler) Approve(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error) {
	if id == "done" {
		return nil, reconcile.ErrNotPending
	}
	if id == "missing" {
		return nil, reconcile.ErrUpdateNotFound
	}
	s.approved = append(s.approved, id)
	return &model.PendingProductUpdate{ID: id, Status: model.UpdateApproved, ReviewerID: reviewerID}, nil
}

func (s *stubReconciler) Reject(ctx context.Context, id, reviewerID string) (*model.PendingProductUpdate, error) {
	return &model.PendingProductUpdate{ID: id, Status: model.UpdateRejected, ReviewerID: reviewerID}, nil
}

func (s *stubReconciler) BulkApprove(ctx context.Context, ids []string, reviewerID string) *reconcile.BulkResult {
	return &reconcile.BulkResult{Succeeded: ids, Failed: map[string]string{}}
}

func (s *stubReconciler) BulkReject(ctx context.Context, ids []string, reviewerID string) *reconcile.BulkResult {
	return &reconcile.BulkResult{Succeeded: ids, Failed: map[string]string{}}
}

func (s *stubReconciler) ListUpdates(ctx context.Context, status model.UpdateStatus, limit, offset int) ([]model.PendingProductUpdate, int64, error) {
	return []model.PendingProductUpdate{{ID: "u1", Status: model.UpdatePending}}, 1, nil
}

type testEnv struct {
	router     http.Handler
	queue      *queue.MemoryQueue
	reconciler *stubReconciler
}

func newTestEnv(t *testing.T) *testEnv {
	q := queue.NewMemoryQueue(queue.Options{})
	rec := &stubReconciler{}
	sup := supervisor.New(q, nil, supervisor.Config{MaxAttempts: 3})
	events := service.NewStockEventService(stubDeltas{}, stubMovements{}, stubProducts{}, q)

	r := New(Config{
		Handler:          handler.New("stocksync", "test"),
		EventHandler:     handler.NewEventHandler(events),
		ReconcileHandler: handler.NewReconcileHandler(rec, service.NewReconcileScheduler(q, 0)),
		QueueHandler:     handler.NewQueueHandler(sup),
		AdminHandler:     handler.NewAdminHandler(nil, q, "memory"),
		AuthMiddleware:   middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testKey}, PublicPaths: PublicPaths}),
	})
	return &testEnv{router: r, queue: q, reconciler: rec}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range PublicPaths {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordScan(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/scans", `{"item_key":"5012345","quantity":2,"reason":"decrease"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	n, err := env.queue.PendingCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rec = env.do(http.MethodPost, "/api/v1/scans", `{"item_key":"5012345","quantity":2,"reason":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)

	rec = env.do(http.MethodPost, "/api/v1/scans", `{"item_key":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordMovement(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/movements", `{"product_id":"p1","from_location":"BAY-1","quantity":3,"user_id":"u1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	tasks, err := env.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskStockMovement, tasks[0].Type)
}

func TestReconcileRun(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/reconcile?dry_run=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary reconcile.Summary
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &summary))
	assert.True(t, summary.DryRun)

	env.reconciler.runErr = syncerr.Connection("catalog page", errors.New("refused"))
	rec = env.do(http.MethodPost, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"summary"`)

	rec = env.do(http.MethodPost, "/api/v1/reconcile?dry_run=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileEnqueue(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/reconcile/enqueue", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/reconcile/enqueue", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued":false`)
}

func TestPendingUpdates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/pending-updates?status=pending&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = env.do(http.MethodGet, "/api/v1/pending-updates?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/pending-updates/u1/approve", `{"reviewer_id":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1"}, env.reconciler.approved)

	rec = env.do(http.MethodPost, "/api/v1/pending-updates/done/approve", `{"reviewer_id":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/pending-updates/missing/approve", `{"reviewer_id":"alice"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/pending-updates/u1/reject", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/pending-updates/bulk-reject", `{"ids":["a","b"],"reviewer_id":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"succeeded":["a","b"]`)
}

func TestQueueRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &model.SyncTask{Type: model.TaskStockDelta, SubjectID: "d1"}
	require.NoError(t, env.queue.Enqueue(ctx, task))
	reserved, err := env.queue.Reserve(ctx)
	require.NoError(t, err)
	reserved.LastError = &model.TaskError{Type: "connection", Class: "transient", Message: "refused"}
	require.NoError(t, env.queue.Bury(ctx, reserved))

	rec := env.do(http.MethodGet, "/api/v1/queue/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health supervisor.Health
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &health))
	assert.Equal(t, 1, health.Failed)

	rec = env.do(http.MethodGet, "/api/v1/queue/recommendations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_type":"connection"`)

	rec = env.do(http.MethodPost, "/api/v1/queue/failed/retry", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/queue/failed/retry?type=connection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retried":1`)

	rec = env.do(http.MethodPost, "/api/v1/queue/failed/nope/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/queue/failed", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"confirm"`)

	rec = env.do(http.MethodDelete, "/api/v1/queue/failed?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"purged":0`)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/admin/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending_tasks":0`)
	assert.Contains(t, rec.Body.String(), `"not_configured"`)
}
