package handler

import (
	"context"
	"net/http"

	"stocksync-api/internal/model"
	"stocksync-api/internal/service"
	"stocksync-api/pkg/response"
)

// EventRecorder records local stock events.
type EventRecorder interface {
	RecordScan(ctx context.Context, in service.ScanInput) (*model.StockDelta, *model.SyncTask, error)
	RecordMovement(ctx context.Context, in service.MovementInput) (*model.StockMovement, *model.SyncTask, error)
}

// EventHandler handles scan and movement intake.
type EventHandler struct {
	events EventRecorder
}

// NewEventHandler creates a new event handler.
func NewEventHandler(events EventRecorder) *EventHandler {
	return &EventHandler{events: events}
}

// RecordScan handles POST /api/v1/scans
func (h *EventHandler) RecordScan(w http.ResponseWriter, r *http.Request) {
	var in service.ScanInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	delta, task, err := h.events.RecordScan(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Accepted(w, map[string]interface{}{
		"delta":   delta,
		"task_id": task.ID,
	})
}

// RecordMovement handles POST /api/v1/movements
func (h *EventHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var in service.MovementInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	movement, task, err := h.events.RecordMovement(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Accepted(w, map[string]interface{}{
		"movement": movement,
		"task_id":  task.ID,
	})
}
