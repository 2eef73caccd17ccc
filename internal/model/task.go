package model

import "time"

// TaskType identifies the work a queued SyncTask performs.
type TaskType string

const (
	TaskStockDelta       TaskType = "stock_delta"
	TaskStockMovement    TaskType = "stock_movement"
	TaskCatalogReconcile TaskType = "catalog_reconcile"
)

// TaskError is the last recorded failure of a task.
type TaskError struct {
	Type    string `json:"type"`            // error kind
	Class   string `json:"class,omitempty"` // transient, auth or permanent
	Message string `json:"message"`
}

// SyncTask is a queued unit of sync work together with its attempt bookkeeping.
type SyncTask struct {
	ID             string     `json:"id"`
	Type           TaskType   `json:"type"`
	SubjectID      string     `json:"subject_id,omitempty"` // delta or movement id
	DryRun         bool       `json:"dry_run,omitempty"`
	Attempts       int        `json:"attempts"`
	LastError      *TaskError `json:"last_error,omitempty"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	ReservedAt     *time.Time `json:"reserved_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskStockDelta, TaskStockMovement, TaskCatalogReconcile:
		return true
	}
	return false
}
