package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/scans"
	"github.com/kuapa/kuapa/backend/internal/sync/scheduler"
)

// ScanHandler handles captures and the scan history.
type ScanHandler struct {
	records *scans.Store
	sched   *scheduler.Scheduler
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(records *scans.Store, sched *scheduler.Scheduler) *ScanHandler {
	return &ScanHandler{records: records, sched: sched}
}

// Register mounts the scan routes on r.
func (h *ScanHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/scans", h.ListScans).Methods(http.MethodGet)
	r.HandleFunc("/api/scans", h.CreateScan).Methods(http.MethodPost)
	r.HandleFunc("/api/scans", h.ClearScans).Methods(http.MethodDelete)
	r.HandleFunc("/api/scans/stats", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/scans/{id}", h.GetScan).Methods(http.MethodGet)
	r.HandleFunc("/api/scans/{id}", h.DeleteScan).Methods(http.MethodDelete)
}

// ListScans handles GET /api/scans
// Optional query parameters: crop (filter) and limit.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	var history []models.ScanRecord
	if crop := r.URL.Query().Get("crop"); crop != "" {
		ct, err := models.ParseCropType(crop)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid crop", err))
			return
		}
		history = h.records.ByCrop(ct)
	} else {
		history = h.records.History()
	}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	if history == nil {
		history = []models.ScanRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": history,
		"total": len(history),
	})
}

type createScanRequest struct {
	Image    string           `json:"image"`
	CropType models.CropType  `json:"cropType"`
	UserID   string           `json:"userId"`
	Location *models.GeoPoint `json:"location"`
	Notes    string           `json:"notes"`
}

// CreateScan handles POST /api/scans
// A classified capture answers 201 with the record. A capture that could not be
// classified answers 202 with the queued item and the reason.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sched.Capture(r.Context(), scheduler.CaptureRequest{
		Image:    req.Image,
		CropType: req.CropType,
		UserID:   req.UserID,
		Location: req.Location,
		Notes:    req.Notes,
	})

	switch {
	case result.Record != nil:
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"record":        result.Record,
			"imageFallback": result.ImageFallback,
		})
	case result.Queued != nil:
		body := map[string]interface{}{"pending": result.Queued}
		if err != nil {
			body["error"] = errorBody{Code: apperrors.CodeOf(err), Message: err.Error()}
		}
		writeJSON(w, http.StatusAccepted, body)
	default:
		writeError(w, err)
	}
}

// GetScan handles GET /api/scans/{id}
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, ok := h.records.FindByID(id)
	if !ok {
		writeError(w, apperrors.New(apperrors.ErrNotFound, "scan not found"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteScan handles DELETE /api/scans/{id}
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	h.records.Remove(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// ClearScans handles DELETE /api/scans
func (h *ScanHandler) ClearScans(w http.ResponseWriter, r *http.Request) {
	h.records.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /api/scans/stats
func (h *ScanHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.records.Stats())
}
