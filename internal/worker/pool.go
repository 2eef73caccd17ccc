// Package worker runs queued sync tasks.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/reconcile"
	"stocksync-api/internal/stocksync"
	"stocksync-api/internal/supervisor"
	"stocksync-api/internal/syncerr"
)

// StockSyncer applies deltas and movements.
type StockSyncer interface {
	SyncDelta(ctx context.Context, id string) (*stocksync.Result, error)
	SyncMovement(ctx context.Context, id string) error
}

// CatalogRunner runs a reconciliation pass.
type CatalogRunner interface {
	Run(ctx context.Context, dryRun bool) (*reconcile.Summary, error)
}

// Settler records the outcome of an attempt.
type Settler interface {
	Settle(ctx context.Context, task *model.SyncTask, err error) (supervisor.Outcome, error)
}

// settleTimeout bounds recording a task outcome.
const settleTimeout = 30 * time.Second

// Config holds worker pool settings.
type Config struct {
	Workers          int
	PollInterval     time.Duration
	TaskTimeout      time.Duration
	ReconcileTimeout time.Duration
}

// Pool polls the queue with a fixed number of workers.
type Pool struct {
	queue      queue.Queue
	syncer     StockSyncer
	reconciler CatalogRunner
	settler    Settler
	config     Config

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewPool creates a worker pool.
func NewPool(q queue.Queue, syncer StockSyncer, reconciler CatalogRunner, settler Settler, config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 2 * time.Minute
	}
	if config.ReconcileTimeout <= 0 {
		config.ReconcileTimeout = time.Hour
	}
	return &Pool{
		queue:      q,
		syncer:     syncer,
		reconciler: reconciler,
		settler:    settler,
		config:     config,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return
	}
	p.isRunning = true

	log.Printf("[WorkerPool] Started - Workers: %d, Poll: %v", p.config.Workers, p.config.PollInterval)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Stop signals the workers and waits for in-flight tasks to reach a terminal state.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	p.mu.Lock()
	p.isRunning = false
	p.mu.Unlock()
	log.Printf("[WorkerPool] Stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		worked, err := p.ProcessOne(context.Background())
		if err != nil {
			log.Printf("[WorkerPool] Worker %d: %v", id, err)
		}
		if worked {
			continue
		}

		timer := time.NewTimer(p.config.PollInterval)
		select {
		case <-timer.C:
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

// ProcessOne reserves and runs a single task. It reports whether a task was found.
// A started task is not cancelled by Stop; it runs until it succeeds or fails.
func (p *Pool) ProcessOne(ctx context.Context) (bool, error) {
	task, err := p.queue.Reserve(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	timeout := p.config.TaskTimeout
	if task.Type == model.TaskCatalogReconcile {
		timeout = p.config.ReconcileTimeout
	}
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	runErr := p.execute(taskCtx, task)

	// The task deadline may have passed; the outcome is still recorded.
	settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancelSettle()

	outcome, err := p.settler.Settle(settleCtx, task, runErr)
	if err != nil {
		return true, fmt.Errorf("failed to settle task %s: %w", task.ID, err)
	}
	if runErr != nil {
		log.Printf("[WorkerPool] Task %s (%s) %s: %v", task.ID, task.Type, outcome, runErr)
	}
	return true, nil
}

// execute dispatches by task type. A panic becomes an internal error so the
// task is still settled with a reason.
func (p *Pool) execute(ctx context.Context, task *model.SyncTask) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = syncerr.New(syncerr.KindInternal, "worker", fmt.Sprintf("panic running task %s: %v", task.ID, rec))
		}
	}()

	switch task.Type {
	case model.TaskStockDelta:
		_, err = p.syncer.SyncDelta(ctx, task.SubjectID)
		return err
	case model.TaskStockMovement:
		return p.syncer.SyncMovement(ctx, task.SubjectID)
	case model.TaskCatalogReconcile:
		_, err = p.reconciler.Run(ctx, task.DryRun)
		return err
	default:
		return syncerr.Validation("worker", fmt.Sprintf("unknown task type %q", task.Type))
	}
}
