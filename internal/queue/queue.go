// Package queue provides the durable task queue sync work runs on.
package queue

import (
	"context"
	"time"

	"stocksync-api/internal/model"
)

// Queue is an at-least-once task queue with delayed retry and a dead-letter set.
//
// A task is in exactly one of three places: ready (possibly delayed), reserved by
// a worker, or failed. Reserved tasks count as pending.
type Queue interface {
	// Enqueue adds a task to the ready set, assigning ID and EnqueuedAt when unset.
	Enqueue(ctx context.Context, task *model.SyncTask) error

	// Reserve hands out the next eligible ready task, or nil when none is eligible.
	// A reservation held longer than the lease returns to the ready set first.
	Reserve(ctx context.Context) (*model.SyncTask, error)

	// Complete removes a reserved task for good.
	Complete(ctx context.Context, id string) error

	// Release returns a reserved task to the ready set, delayed by the backoff for task.Attempts.
	// Callers record the attempt and error on task before releasing it.
	Release(ctx context.Context, task *model.SyncTask) error

	// Bury moves a task into the failed (dead-letter) set.
	Bury(ctx context.Context, task *model.SyncTask) error

	// PendingCount returns the number of ready and reserved tasks.
	PendingCount(ctx context.Context) (int64, error)

	// Pending lists ready and reserved tasks.
	Pending(ctx context.Context) ([]model.SyncTask, error)

	// Failed lists dead-lettered tasks.
	Failed(ctx context.Context) ([]model.SyncTask, error)

	// Retry moves a failed task back to the ready set with a fresh attempt count.
	Retry(ctx context.Context, id string) error

	// Delete removes a task wherever it is.
	Delete(ctx context.Context, id string) error

	// PurgeFailed deletes every failed task and returns how many were removed.
	PurgeFailed(ctx context.Context) (int64, error)
}

// QueueError is a sentinel error type for queue operations.
type QueueError string

func (e QueueError) Error() string { return string(e) }

const (
	// ErrTaskNotFound is returned when an id is not in the expected set.
	ErrTaskNotFound QueueError = "task not found"
)

// Options holds retry settings shared by all implementations.
type Options struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Lease is how long a reservation may stay unsettled before the task is delivered again.
	// It must exceed the longest task timeout.
	Lease time.Duration
}

func (o Options) withDefaults() Options {
	if o.BackoffBase <= 0 {
		o.BackoffBase = 30 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Minute
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Hour
	}
	return o
}

// Backoff returns the delay before retry number attempt: base*2^(attempt-1), capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func resetForRetry(t *model.SyncTask) {
	t.Attempts = 0
	t.LastError = nil
	t.NextEligibleAt = nil
	t.ReservedAt = nil
	t.FailedAt = nil
}
