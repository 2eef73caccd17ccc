package service

import (
	"context"
	"log"
	"sync"
	"time"

	"stocksync-api/internal/model"
	"stocksync-api/internal/queue"
)

// ReconcileScheduler periodically queues a catalog reconciliation pass.
type ReconcileScheduler struct {
	queue     queue.Queue
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewReconcileScheduler creates a scheduler. A zero interval disables it.
func NewReconcileScheduler(q queue.Queue, interval time.Duration) *ReconcileScheduler {
	return &ReconcileScheduler{
		queue:    q,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *ReconcileScheduler) Start() {
	if s.interval <= 0 {
		log.Printf("[ReconcileScheduler] Disabled (RECONCILE_INTERVAL=0)")
		return
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	log.Printf("[ReconcileScheduler] Started - Interval: %v", s.interval)
	go s.run()
}

func (s *ReconcileScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.Enqueue(ctx, false); err != nil {
				log.Printf("[ReconcileScheduler] Error queueing pass: %v", err)
			}
			cancel()
		case <-s.stopCh:
			log.Printf("[ReconcileScheduler] Stopped")
			return
		}
	}
}

// Enqueue queues a reconciliation pass unless one is already waiting or running.
// It returns nil when a pass was already queued.
func (s *ReconcileScheduler) Enqueue(ctx context.Context, dryRun bool) (*model.SyncTask, error) {
	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range pending {
		if t.Type == model.TaskCatalogReconcile && t.DryRun == dryRun {
			log.Printf("[ReconcileScheduler] Pass %s already queued, skipping", t.ID)
			return nil, nil
		}
	}

	task := &model.SyncTask{Type: model.TaskCatalogReconcile, DryRun: dryRun}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	log.Printf("[ReconcileScheduler] Queued pass %s (dry_run=%v)", task.ID, dryRun)
	return task, nil
}

// Stop stops the scheduler.
func (s *ReconcileScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
