package queue

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/pkg/uid"
)

type taskState int

const (
	stateReady taskState = iota
	stateReserved
	stateFailed
)

type memoryEntry struct {
	task  model.SyncTask
	state taskState
	seq   uint64
}

// MemoryQueue is an in-process Queue for development, tests and single-instance deployments.
// Tasks do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	seq     uint64
	opts    Options
	now     func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]*memoryEntry),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// Enqueue adds a task to the ready set.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.ID == "" {
		task.ID = uid.NewTaskID()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.now().UTC()
	}
	q.seq++
	q.entries[task.ID] = &memoryEntry{task: *task, state: stateReady, seq: q.seq}
	return nil
}

// Reserve returns the ready task that became eligible first.
func (q *MemoryQueue) Reserve(ctx context.Context) (*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.reclaimExpired(now)

	var next *memoryEntry
	for _, e := range q.entries {
		if e.state != stateReady || !eligible(&e.task, now) {
			continue
		}
		if next == nil || before(e, next) {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}

	reservedAt := now.UTC()
	next.state = stateReserved
	next.task.ReservedAt = &reservedAt
	task := next.task
	return &task, nil
}

// reclaimExpired returns reservations older than the lease to the ready set.
func (q *MemoryQueue) reclaimExpired(now time.Time) {
	for _, e := range q.entries {
		if e.state != stateReserved || e.task.ReservedAt == nil {
			continue
		}
		if now.Sub(*e.task.ReservedAt) < q.opts.Lease {
			continue
		}
		log.Printf("[MemoryQueue] Reclaiming task %s reserved at %s", e.task.ID, e.task.ReservedAt.Format(time.RFC3339))
		e.state = stateReady
		e.task.ReservedAt = nil
	}
}

// Complete removes a finished task.
func (q *MemoryQueue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return ErrTaskNotFound
	}
	delete(q.entries, id)
	return nil
}

// Release reschedules a task after its backoff delay.
func (q *MemoryQueue) Release(ctx context.Context, task *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	eligibleAt := q.now().Add(Backoff(q.opts.BackoffBase, q.opts.BackoffMax, task.Attempts)).UTC()
	task.NextEligibleAt = &eligibleAt
	task.ReservedAt = nil

	q.seq++
	e.task = *task
	e.state = stateReady
	e.seq = q.seq
	return nil
}

// Bury dead-letters a task.
func (q *MemoryQueue) Bury(ctx context.Context, task *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	failedAt := q.now().UTC()
	task.FailedAt = &failedAt
	task.ReservedAt = nil
	task.NextEligibleAt = nil

	e.task = *task
	e.state = stateFailed
	return nil
}

// PendingCount returns the number of ready and reserved tasks.
func (q *MemoryQueue) PendingCount(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, e := range q.entries {
		if e.state != stateFailed {
			n++
		}
	}
	return n, nil
}

// Pending lists ready and reserved tasks, oldest first.
func (q *MemoryQueue) Pending(ctx context.Context) ([]model.SyncTask, error) {
	return q.list(func(s taskState) bool { return s != stateFailed }), nil
}

// Failed lists dead-lettered tasks, oldest first.
func (q *MemoryQueue) Failed(ctx context.Context) ([]model.SyncTask, error) {
	return q.list(func(s taskState) bool { return s == stateFailed }), nil
}

// Retry moves a failed task back to the ready set.
func (q *MemoryQueue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.state != stateFailed {
		return ErrTaskNotFound
	}
	resetForRetry(&e.task)
	q.seq++
	e.state = stateReady
	e.seq = q.seq
	return nil
}

// Delete removes a task in any state.
func (q *MemoryQueue) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return ErrTaskNotFound
	}
	delete(q.entries, id)
	return nil
}

// PurgeFailed removes all failed tasks.
func (q *MemoryQueue) PurgeFailed(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for id, e := range q.entries {
		if e.state == stateFailed {
			delete(q.entries, id)
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) list(match func(taskState) bool) []model.SyncTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]*memoryEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if match(e.state) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].task.EnqueuedAt.Equal(entries[j].task.EnqueuedAt) {
			return entries[i].task.EnqueuedAt.Before(entries[j].task.EnqueuedAt)
		}
		return entries[i].seq < entries[j].seq
	})

	tasks := make([]model.SyncTask, len(entries))
	for i, e := range entries {
		tasks[i] = e.task
	}
	return tasks
}

func eligible(t *model.SyncTask, now time.Time) bool {
	return t.NextEligibleAt == nil || !t.NextEligibleAt.After(now)
}

// eligibleAt orders ready tasks; undelayed tasks use their enqueue time.
func eligibleAt(t *model.SyncTask) time.Time {
	if t.NextEligibleAt != nil {
		return *t.NextEligibleAt
	}
	return t.EnqueuedAt
}

func before(a, b *memoryEntry) bool {
	ta, tb := eligibleAt(&a.task), eligibleAt(&b.task)
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.seq < b.seq
}

var _ Queue = (*MemoryQueue)(nil)
