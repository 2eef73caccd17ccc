package supervisor

import (
	"context"
	"log"
	"sort"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/syncerr"
)

// SessionInvalidator forces the next remote call to re-authorize.
type SessionInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Config holds supervisor policy settings.
type Config struct {
	MaxAttempts    int
	StuckThreshold time.Duration
}

// Outcome is what Settle did with a task.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeRetrying     Outcome = "retrying"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Supervisor decides what happens to a task after each attempt.
// The queue schedules the delay; the supervisor only decides eligibility.
type Supervisor struct {
	queue   queue.Queue
	session SessionInvalidator
	cfg     Config
	now     func() time.Time
}

// New creates a supervisor.
func New(q queue.Queue, session SessionInvalidator, cfg Config) *Supervisor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = time.Hour
	}
	return &Supervisor{queue: q, session: session, cfg: cfg, now: time.Now}
}

// Settle records the result of one attempt of a reserved task.
// Success and already-synced complete the task. Permanent failures and
// exhausted tasks are dead-lettered. Everything else is released for retry.
func (s *Supervisor) Settle(ctx context.Context, task *model.SyncTask, err error) (Outcome, error) {
	if err == nil || syncerr.Is(err, syncerr.KindAlreadySynced) {
		if err := s.queue.Complete(ctx, task.ID); err != nil {
			return "", err
		}
		return OutcomeCompleted, nil
	}

	class := Classify(err)
	task.Attempts++
	task.LastError = &model.TaskError{
		Type:    string(syncerr.KindOf(err)),
		Class:   string(class),
		Message: err.Error(),
	}

	if class == ClassAuth && s.session != nil {
		if ierr := s.session.Invalidate(ctx); ierr != nil {
			log.Printf("[SyncQueueSupervisor] Failed to invalidate session: %v", ierr)
		}
	}

	if class == ClassPermanent || task.Attempts >= s.cfg.MaxAttempts {
		if err := s.queue.Bury(ctx, task); err != nil {
			return "", err
		}
		log.Printf("[SyncQueueSupervisor] Task %s (%s) dead-lettered after %d attempt(s): %s",
			task.ID, task.Type, task.Attempts, task.LastError.Message)
		return OutcomeDeadLettered, nil
	}

	if err := s.queue.Release(ctx, task); err != nil {
		return "", err
	}
	log.Printf("[SyncQueueSupervisor] Task %s (%s) attempt %d/%d failed (%s), retrying",
		task.ID, task.Type, task.Attempts, s.cfg.MaxAttempts, class)
	return OutcomeRetrying, nil
}

// Health summarizes queue state for the operational UI.
type Health struct {
	Status         string         `json:"status"`
	Pending        int64          `json:"pending"`
	Reserved       int            `json:"reserved"`
	Failed         int            `json:"failed"`
	Stuck          int            `json:"stuck"`
	StuckThreshold string         `json:"stuck_threshold"`
	FailedByType   map[string]int `json:"failed_by_type"`
	CheckedAt      time.Time      `json:"checked_at"`
}

// Health counts pending, failed and stuck (pending longer than the threshold) tasks.
func (s *Supervisor) Health(ctx context.Context) (*Health, error) {
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.queue.Failed(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	h := &Health{
		Pending:        int64(len(pending)),
		Failed:         len(failed),
		StuckThreshold: s.cfg.StuckThreshold.String(),
		FailedByType:   make(map[string]int),
		CheckedAt:      now.UTC(),
	}
	for _, t := range pending {
		if t.ReservedAt != nil {
			h.Reserved++
		}
		if now.Sub(t.EnqueuedAt) > s.cfg.StuckThreshold {
			h.Stuck++
		}
	}
	for _, t := range failed {
		h.FailedByType[errorType(t)]++
	}

	h.Status = "healthy"
	if h.Failed > 0 || h.Stuck > 0 {
		h.Status = "degraded"
	}
	return h, nil
}

// Recommendation is one failure bucket with a suggested operator action.
type Recommendation struct {
	ErrorType  string `json:"error_type"`
	Class      Class  `json:"class"`
	Count      int    `json:"count"`
	Priority   int    `json:"priority"`
	Suggestion string `json:"suggestion"`
}

// Recommendations groups failed tasks by error type, ranked by priority.
func (s *Supervisor) Recommendations(ctx context.Context) ([]Recommendation, error) {
	failed, err := s.queue.Failed(ctx)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*Recommendation)
	for _, t := range failed {
		typ := errorType(t)
		b, ok := buckets[typ]
		if !ok {
			b = &Recommendation{ErrorType: typ, Class: errorClass(t), Suggestion: suggestionFor(typ)}
			buckets[typ] = b
		}
		b.Count++
	}

	recs := make([]Recommendation, 0, len(buckets))
	for _, b := range buckets {
		b.Priority = b.Class.weight() * b.Count
		recs = append(recs, *b)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].ErrorType < recs[j].ErrorType
	})
	return recs, nil
}

// FailedTasks lists dead-lettered tasks for drill-down.
func (s *Supervisor) FailedTasks(ctx context.Context) ([]model.SyncTask, error) {
	return s.queue.Failed(ctx)
}

// RetryTask moves one failed task back onto the queue.
func (s *Supervisor) RetryTask(ctx context.Context, id string) error {
	if err := s.queue.Retry(ctx, id); err != nil {
		return err
	}
	log.Printf("[SyncQueueSupervisor] Task %s requeued by operator", id)
	return nil
}

// RetryAllOfType requeues every failed task whose last error has the given type.
// Retrying auth failures invalidates the session first.
func (s *Supervisor) RetryAllOfType(ctx context.Context, errType string) (int, error) {
	failed, err := s.queue.Failed(ctx)
	if err != nil {
		return 0, err
	}

	if errType == string(syncerr.KindAuth) && s.session != nil {
		if err := s.session.Invalidate(ctx); err != nil {
			log.Printf("[SyncQueueSupervisor] Failed to invalidate session: %v", err)
		}
	}

	retried := 0
	for _, t := range failed {
		if errorType(t) != errType {
			continue
		}
		if err := s.queue.Retry(ctx, t.ID); err != nil {
			log.Printf("[SyncQueueSupervisor] Failed to requeue %s: %v", t.ID, err)
			continue
		}
		retried++
	}
	log.Printf("[SyncQueueSupervisor] Requeued %d failed %s task(s)", retried, errType)
	return retried, nil
}

// PurgeFailed irreversibly deletes all failed tasks.
func (s *Supervisor) PurgeFailed(ctx context.Context, actor string) (int64, error) {
	n, err := s.queue.PurgeFailed(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[SyncQueueSupervisor] PURGE: %d failed task(s) deleted by %s", n, actor)
	return n, nil
}

func errorType(t model.SyncTask) string {
	if t.LastError == nil || t.LastError.Type == "" {
		return "unknown"
	}
	return t.LastError.Type
}

func errorClass(t model.SyncTask) Class {
	if t.LastError == nil || t.LastError.Class == "" {
		return ClassTransient
	}
	return Class(t.LastError.Class)
}

func suggestionFor(errType string) string {
	switch syncerr.Kind(errType) {
	case syncerr.KindAuth:
		return "Remote credentials were rejected after a token refresh. Check the application id, secret and install token, then retry all auth failures."
	case syncerr.KindUnresolvedItem:
		return "Scanned codes match no product barcode or SKU. Fix the product barcodes or run a catalog reconcile, then retry."
	case syncerr.KindValidation:
		return "Tasks carry invalid data. Inspect and delete them."
	case syncerr.KindConnection:
		return "The remote was unreachable. Retry once connectivity is restored."
	case syncerr.KindRemoteServer:
		return "The remote returned errors. Check its status and retry."
	case syncerr.KindMalformedResponse:
		return "The remote returned unexpected data. Check for API changes before retrying."
	default:
		return "Inspect the task errors."
	}
}
