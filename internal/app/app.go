// Package app wires configuration into the running sync components.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"stocksync-api/internal/cache"
	"stocksync-api/internal/config"
	"stocksync-api/internal/handler"
	"stocksync-api/internal/inventory"
	"stocksync-api/internal/middleware"
	"stocksync-api/internal/queue"
	"stocksync-api/internal/reconcile"
	"stocksync-api/internal/remote"
	"stocksync-api/internal/repository"
	"stocksync-api/internal/router"
	"stocksync-api/internal/service"
	"stocksync-api/internal/stocksync"
	"stocksync-api/internal/supervisor"
	"stocksync-api/internal/worker"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config

	Redis   *redis.Client
	Cache   cache.Cache
	Session *remote.Session
	Client  *remote.Client
	Reader  *inventory.Reader
	Writer  *inventory.Writer
	Store   *repository.SQLStore
	Queue   queue.Queue

	Engine     *stocksync.Engine
	Reconciler *reconcile.Reconciler
	Supervisor *supervisor.Supervisor
	Events     *service.StockEventService
	Scheduler  *service.ReconcileScheduler
	Pool       *worker.Pool
}

// New builds the application from cfg. Call Close when done.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Cache.Type == "redis" || cfg.Queue.Driver == "redis" {
		client, err := connectRedis(cfg.Cache)
		if err != nil {
			return nil, err
		}
		a.Redis = client
	}

	// Remote session token slot
	if cfg.Cache.Type == "redis" {
		a.Cache = cache.NewRedisCache(a.Redis, cfg.App.Name+":cache")
		log.Println("[App] Redis token cache initialized")
	} else {
		a.Cache = cache.NewMemoryCache()
		log.Println("[App] In-memory token cache initialized")
	}

	httpClient := &http.Client{Timeout: cfg.Remote.Timeout}
	a.Session = remote.NewSession(httpClient, cfg.Remote.BaseURL, remote.Credentials{
		ApplicationID:     cfg.Remote.ApplicationID,
		ApplicationSecret: cfg.Remote.ApplicationSecret,
		InstallToken:      cfg.Remote.InstallToken,
	}, cache.NewTokenSlot(a.Cache))
	a.Client = remote.NewClient(httpClient, a.Session, remote.ClientConfig{
		BaseURL:   cfg.Remote.BaseURL,
		RateLimit: rate.Limit(cfg.Remote.RateLimit),
		RateBurst: cfg.Remote.RateBurst,
	})
	a.Reader = inventory.NewReader(a.Client)
	a.Writer = inventory.NewWriter(a.Client)

	// Local store
	if cfg.Store.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := repository.OpenSQLStore(cfg.Store.Driver, cfg.Store.DSN())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	// Task queue
	queueOpts := queue.Options{
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffMax:  cfg.Queue.BackoffMax,
		Lease:       cfg.Queue.Lease,
	}
	if cfg.Queue.Driver == "redis" {
		a.Queue = queue.NewRedisQueue(a.Redis, cfg.Queue.KeyPrefix, queueOpts)
		log.Println("[App] Redis task queue initialized")
	} else {
		a.Queue = queue.NewMemoryQueue(queueOpts)
		log.Println("[App] In-memory task queue initialized (tasks are lost on restart)")
	}

	a.Engine = stocksync.NewEngine(store.Products(), store.Deltas(), store.Movements(), a.Reader, a.Writer, stocksync.Config{
		DefaultLocation: cfg.Remote.DefaultLocation,
		SerializeItems:  cfg.Queue.SerializeItems,
	})
	a.Reconciler = reconcile.NewReconciler(a.Reader, store.Products(), store.PendingUpdates(), reconcile.Config{
		PageSize:   cfg.Reconcile.PageSize,
		MaxPages:   cfg.Reconcile.MaxPages,
		SafeFields: cfg.Reconcile.SafeFields,
	})
	a.Supervisor = supervisor.New(a.Queue, a.Session, supervisor.Config{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		StuckThreshold: cfg.Queue.StuckThreshold,
	})
	a.Events = service.NewStockEventService(store.Deltas(), store.Movements(), store.Products(), a.Queue)
	a.Scheduler = service.NewReconcileScheduler(a.Queue, cfg.Reconcile.Interval)
	a.Pool = worker.NewPool(a.Queue, a.Engine, a.Reconciler, a.Supervisor, worker.Config{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
	})

	return a, nil
}

// Router builds the admin HTTP API.
func (a *App) Router() http.Handler {
	checks := []handler.ReadinessCheck{{Name: "store", Check: a.Store.Ping}}
	if a.Redis != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}

	return router.New(router.Config{
		Handler:          handler.New(a.Config.App.Name, a.Config.App.Version, checks...),
		EventHandler:     handler.NewEventHandler(a.Events),
		ReconcileHandler: handler.NewReconcileHandler(a.Reconciler, a.Scheduler),
		QueueHandler:     handler.NewQueueHandler(a.Supervisor),
		AdminHandler:     handler.NewAdminHandler(a.Store, a.Queue, a.Config.Queue.Driver),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:     a.Config.App.APIKeys,
			PublicPaths: router.PublicPaths,
		}),
	})
}

// StartBackground starts the worker pool and reconcile scheduler.
func (a *App) StartBackground() {
	a.Pool.Start()
	a.Scheduler.Start()
}

// StopBackground stops the scheduler and drains the worker pool.
func (a *App) StopBackground() {
	a.Scheduler.Stop()
	a.Pool.Stop()
}

// Close releases every connection held by the app.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("[App] Store close error: %v", err)
		}
	}
	if c, ok := a.Cache.(io.Closer); ok {
		_ = c.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("[App] Redis close error: %v", err)
		}
	}
}

func connectRedis(cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddress(), err)
	}
	log.Println("[App] Redis client initialized")
	return client, nil
}
