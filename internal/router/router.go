package router

import (
	"net/http"

	"stocksync-api/internal/handler"
	"stocksync-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// PublicPaths are served without an API key.
var PublicPaths = []string{"/api/status", "/api/v1/health", "/api/v1/ready"}

// Config holds the configuration for creating a router.
type Config struct {
	Handler          *handler.Handler
	EventHandler     *handler.EventHandler
	ReconcileHandler *handler.ReconcileHandler
	QueueHandler     *handler.QueueHandler
	AdminHandler     *handler.AdminHandler
	AuthMiddleware   func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Actor"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (the auth middleware lets PublicPaths through)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Stock event intake
			if cfg.EventHandler != nil {
				r.Post("/scans", cfg.EventHandler.RecordScan)
				r.Post("/movements", cfg.EventHandler.RecordMovement)
			}

			// Catalog reconciliation and review
			if cfg.ReconcileHandler != nil {
				r.Post("/reconcile", cfg.ReconcileHandler.Run)
				r.Post("/reconcile/enqueue", cfg.ReconcileHandler.Enqueue)
				r.Route("/pending-updates", func(r chi.Router) {
					r.Get("/", cfg.ReconcileHandler.ListUpdates)
					r.Post("/bulk-approve", cfg.ReconcileHandler.BulkApprove)
					r.Post("/bulk-reject", cfg.ReconcileHandler.BulkReject)
					r.Post("/{id}/approve", cfg.ReconcileHandler.Approve)
					r.Post("/{id}/reject", cfg.ReconcileHandler.Reject)
				})
			}

			// Queue supervision
			if cfg.QueueHandler != nil {
				r.Route("/queue", func(r chi.Router) {
					r.Get("/health", cfg.QueueHandler.Health)
					r.Get("/recommendations", cfg.QueueHandler.Recommendations)
					r.Get("/failed", cfg.QueueHandler.Failed)
					r.Delete("/failed", cfg.QueueHandler.Purge)
					r.Post("/failed/retry", cfg.QueueHandler.RetryAll)
					r.Post("/failed/{id}/retry", cfg.QueueHandler.RetryTask)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Get("/admin/stats", cfg.AdminHandler.GetStats)
			}
		})
	})

	return r
}
