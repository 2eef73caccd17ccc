package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/syncerr"
)

type countingSession struct{ invalidations int }

func (c *countingSession) Invalidate(ctx context.Context) error {
	c.invalidations++
	return nil
}

func newTestSupervisor(maxAttempts int) (*Supervisor, *queue.MemoryQueue, *countingSession) {
	q := queue.NewMemoryQueue(queue.Options{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	session := &countingSession{}
	return New(q, session, Config{MaxAttempts: maxAttempts, StuckThreshold: time.Hour}), q, session
}

func reserve(t *testing.T, q queue.Queue, task *model.SyncTask) *model.SyncTask {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, task))
	got, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func TestClassify(t *testing.T) {
	op := "test"
	cases := []struct {
		err  error
		want Class
	}{
		{syncerr.Connection(op, errors.New("timeout")), ClassTransient},
		{syncerr.RemoteServer(op, 503, "busy"), ClassTransient},
		{syncerr.RemoteServer(op, 429, "slow down"), ClassTransient},
		{syncerr.RemoteServer(op, 400, "bad sku"), ClassPermanent},
		{syncerr.Malformed(op, errors.New("eof")), ClassTransient},
		{syncerr.Auth(op, "rejected"), ClassAuth},
		{syncerr.Unresolved(op, "999"), ClassPermanent},
		{syncerr.Validation(op, "no item key"), ClassPermanent},
		{errors.New("untyped"), ClassTransient},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.err.Error())
	}
}

func TestSettle_SuccessCompletes(t *testing.T) {
	s, q, _ := newTestSupervisor(3)
	ctx := context.Background()

	task := reserve(t, q, &model.SyncTask{Type: model.TaskStockDelta})
	outcome, err := s.Settle(ctx, task, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	n, _ := q.PendingCount(ctx)
	assert.Zero(t, n)
}

func TestSettle_AlreadySyncedCompletes(t *testing.T) {
	s, q, _ := newTestSupervisor(3)
	task := reserve(t, q, &model.SyncTask{Type: model.TaskStockDelta})

	outcome, err := s.Settle(context.Background(), task, syncerr.AlreadySynced("sync", "d1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestSettle_TransientRetriesUntilExhausted(t *testing.T) {
	s, q, _ := newTestSupervisor(3)
	ctx := context.Background()
	task := reserve(t, q, &model.SyncTask{Type: model.TaskStockDelta})
	cause := syncerr.Connection("remote", errors.New("refused"))

	for attempt := 1; attempt <= 2; attempt++ {
		outcome, err := s.Settle(ctx, task, cause)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetrying, outcome)
		assert.Equal(t, attempt, task.Attempts)

		time.Sleep(5 * time.Millisecond)
		task, err = q.Reserve(ctx)
		require.NoError(t, err)
		require.NotNil(t, task)
	}

	outcome, err := s.Settle(ctx, task, cause)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, "connection", failed[0].LastError.Type)
	assert.Equal(t, "transient", failed[0].LastError.Class)
}

func TestSettle_PermanentIsDeadLetteredImmediately(t *testing.T) {
	s, q, _ := newTestSupervisor(5)
	task := reserve(t, q, &model.SyncTask{Type: model.TaskStockDelta})

	outcome, err := s.Settle(context.Background(), task, syncerr.Unresolved("sync", "999"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Equal(t, 1, task.Attempts)
}

func TestSettle_AuthInvalidatesSession(t *testing.T) {
	s, q, session := newTestSupervisor(3)
	task := reserve(t, q, &model.SyncTask{Type: model.TaskStockMovement})

	outcome, err := s.Settle(context.Background(), task, syncerr.Auth("remote", "rejected twice"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetrying, outcome)
	assert.Equal(t, 1, session.invalidations)
}

func TestHealth_CountsStuckAndFailed(t *testing.T) {
	s, q, _ := newTestSupervisor(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &model.SyncTask{Type: model.TaskCatalogReconcile, EnqueuedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, q.Enqueue(ctx, &model.SyncTask{Type: model.TaskStockDelta, EnqueuedAt: time.Now().Add(time.Minute)}))

	old, err := q.Reserve(ctx)
	require.NoError(t, err)
	_, err = s.Settle(ctx, old, syncerr.Connection("remote", errors.New("down")))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, &model.SyncTask{Type: model.TaskStockDelta, EnqueuedAt: time.Now().Add(-3 * time.Hour)}))

	h, err := s.Health(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.Pending)
	assert.Equal(t, 1, h.Failed)
	assert.Equal(t, 1, h.Stuck)
	assert.Equal(t, map[string]int{"connection": 1}, h.FailedByType)
	assert.Equal(t, "degraded", h.Status)
}

func buryWith(t *testing.T, s *Supervisor, q queue.Queue, n int, err error) {
	for i := 0; i < n; i++ {
		task := reserve(t, q, &model.SyncTask{Type: model.TaskStockDelta})
		_, serr := s.Settle(context.Background(), task, err)
		require.NoError(t, serr)
	}
}

func TestRecommendations_RankSystemicFailuresFirst(t *testing.T) {
	s, q, _ := newTestSupervisor(1)

	buryWith(t, s, q, 8, syncerr.Connection("remote", errors.New("down")))
	buryWith(t, s, q, 1, syncerr.Auth("remote", "rejected"))
	buryWith(t, s, q, 2, syncerr.Unresolved("sync", "999"))

	recs, err := s.Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// equal priority ties break on error type
	assert.Equal(t, "auth", recs[0].ErrorType)
	assert.Equal(t, 10, recs[0].Priority)
	assert.Equal(t, "unresolved_item", recs[1].ErrorType)
	assert.Equal(t, 10, recs[1].Priority)
	assert.Equal(t, "connection", recs[2].ErrorType)
	assert.Equal(t, 8, recs[2].Priority)
	assert.NotEmpty(t, recs[0].Suggestion)
}

func TestOperatorActions(t *testing.T) {
	s, q, session := newTestSupervisor(1)
	ctx := context.Background()

	buryWith(t, s, q, 2, syncerr.Auth("remote", "rejected"))
	buryWith(t, s, q, 1, syncerr.Unresolved("sync", "999"))
	session.invalidations = 0

	n, err := s.RetryAllOfType(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, session.invalidations)

	failed, err := s.FailedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, s.RetryTask(ctx, failed[0].ID))
	assert.ErrorIs(t, s.RetryTask(ctx, failed[0].ID), queue.ErrTaskNotFound)

	// reserves the oldest ready task, which is one of the requeued ones
	buryWith(t, s, q, 1, syncerr.Validation("sync", "bad"))
	purged, err := s.PurgeFailed(ctx, "ops")
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	pending, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pending)
}
