package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"stocksync-api/pkg/response"
)

// StatsSource reports local store statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// QueueCounter reports the number of queued tasks.
type QueueCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store     StatsSource
	queue     QueueCounter
	queueType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(store StatsSource, queue QueueCounter, queueType string) *AdminHandler {
	return &AdminHandler{
		store:     store,
		queue:     queue,
		queueType: queueType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	// Queue stats
	if h.queue != nil {
		count, err := h.queue.PendingCount(ctx)
		if err == nil {
			stats["queue"] = map[string]interface{}{
				"type":          h.queueType,
				"pending_tasks": count,
				"status":        "connected",
			}
		} else {
			stats["queue"] = map[string]interface{}{
				"type":   h.queueType,
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["queue"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Store stats
	if h.store != nil {
		storeStats, err := h.store.GetStats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
