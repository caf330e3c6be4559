package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/sync/queue"
	"github.com/kuapa/kuapa/backend/internal/sync/scheduler"
)

// SyncHandler handles the pending-scan queue and retries.
type SyncHandler struct {
	queue *queue.SyncQueue
	sched *scheduler.Scheduler
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(q *queue.SyncQueue, sched *scheduler.Scheduler) *SyncHandler {
	return &SyncHandler{queue: q, sched: sched}
}

// Register mounts the sync routes on r.
func (h *SyncHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/pending", h.ListPending).Methods(http.MethodGet)
	r.HandleFunc("/api/pending/retry", h.RetryAll).Methods(http.MethodPost)
	r.HandleFunc("/api/pending/{id}", h.DeletePending).Methods(http.MethodDelete)
	r.HandleFunc("/api/pending/{id}/retry", h.RetryPending).Methods(http.MethodPost)
	r.HandleFunc("/api/sync/status", h.GetStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/sync/online", h.SetOnline).Methods(http.MethodPut)
}

// ListPending handles GET /api/pending
// Optional query parameter: status (pending, syncing or failed).
func (h *SyncHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	var items []models.PendingScan
	switch status := models.SyncStatus(r.URL.Query().Get("status")); status {
	case "":
		items = h.queue.List()
	case models.SyncStatusPending, models.SyncStatusSyncing, models.SyncStatusFailed:
		items = h.queue.ByStatus(status)
	default:
		writeError(w, apperrors.New(apperrors.ErrInvalid, "invalid status "+string(status)))
		return
	}
	if items == nil {
		items = []models.PendingScan{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"stats": h.queue.GetStats(),
	})
}

// RetryPending handles POST /api/pending/{id}/retry
func (h *SyncHandler) RetryPending(w http.ResponseWriter, r *http.Request) {
	record, err := h.sched.Retry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// RetryAll handles POST /api/pending/retry
// The pass runs in the background; progress is visible through the websocket.
// started is false while the scheduler is stopped or already retrying.
func (h *SyncHandler) RetryAll(w http.ResponseWriter, r *http.Request) {
	started := h.sched.TriggerRetry(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"started": started})
}

// DeletePending handles DELETE /api/pending/{id}
// The capture is discarded without being classified.
func (h *SyncHandler) DeletePending(w http.ResponseWriter, r *http.Request) {
	if !h.queue.Dequeue(mux.Vars(r)["id"]) {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "pending scan not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.GetStatus())
}

// SetOnline handles PUT /api/sync/online
// The rendering layer reports connectivity changes here.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Online == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "online is required"))
		return
	}
	h.sched.SetOnlineStatus(*req.Online)
	writeJSON(w, http.StatusOK, h.sched.GetStatus())
}
