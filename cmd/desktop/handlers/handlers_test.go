// Package handlers tests for the local bridge REST endpoints.
// These tests verify request handling, status codes, and responses.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/kuapa/kuapa/backend/internal/app"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/parser/media"
)

// setupTestRouter builds the core over an in-memory store and mounts every handler.
func setupTestRouter(t *testing.T) (*app.App, *mux.Router) {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Sync.RetryInterval = 0
	cfg.Detection.MockLatency = time.Millisecond

	core, err := app.New(context.Background(), cfg, kv.NewMemory())
	if err != nil {
		t.Fatalf("Failed to build core: %v", err)
	}
	t.Cleanup(func() { core.Close(time.Second) })

	r := mux.NewRouter()
	NewScanHandler(core.Scans, core.Scheduler).Register(r)
	NewSyncHandler(core.Queue, core.Scheduler).Register(r)
	NewNotificationHandler(core.Notifications).Register(r)
	NewAuthHandler(core.Auth).Register(r)
	return core, r
}

func doRequest(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func jpegDataURL(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 30)), nil); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	return media.EncodeDataURL(buf.Bytes(), "image/jpeg")
}

// TestCreateScan tests a capture is classified and listed
func TestCreateScan(t *testing.T) {
	_, r := setupTestRouter(t)

	rr := doRequest(t, r, http.MethodPost, "/api/scans", map[string]interface{}{
		"image":    jpegDataURL(t),
		"cropType": "cocoa",
		"notes":    "east plot",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Record models.ScanRecord `json:"record"`
	}
	decode(t, rr, &created)
	if created.Record.ID == "" || created.Record.CropType != models.CropCocoa {
		t.Errorf("Unexpected record: %+v", created.Record)
	}

	rr = doRequest(t, r, http.MethodGet, "/api/scans", nil)
	var list struct {
		Items []models.ScanRecord `json:"items"`
		Total int                 `json:"total"`
	}
	decode(t, rr, &list)
	if list.Total != 1 || list.Items[0].ID != created.Record.ID {
		t.Errorf("Expected the new record listed, got %+v", list)
	}

	rr = doRequest(t, r, http.MethodGet, "/api/scans/"+created.Record.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}

	rr = doRequest(t, r, http.MethodGet, "/api/scans/stats", nil)
	var stats struct {
		Total int `json:"total"`
	}
	decode(t, rr, &stats)
	if rr.Code != http.StatusOK || stats.Total != 1 {
		t.Errorf("Expected stats for 1 scan, got %d %s", rr.Code, rr.Body.String())
	}
}

// TestCreateScan_invalid tests request validation
func TestCreateScan_invalid(t *testing.T) {
	_, r := setupTestRouter(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"unknown crop", map[string]string{"image": jpegDataURL(t), "cropType": "coffee"}},
		{"missing image", map[string]string{"cropType": "maize"}},
		{"not json", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, http.MethodPost, "/api/scans", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

// TestCreateScan_offline tests an offline capture is queued
func TestCreateScan_offline(t *testing.T) {
	core, r := setupTestRouter(t)

	rr := doRequest(t, r, http.MethodPut, "/api/sync/online", map[string]bool{"online": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	rr = doRequest(t, r, http.MethodPost, "/api/scans", map[string]string{
		"image":    jpegDataURL(t),
		"cropType": "rice",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var queued struct {
		Pending models.PendingScan `json:"pending"`
	}
	decode(t, rr, &queued)

	rr = doRequest(t, r, http.MethodGet, "/api/pending?status=pending", nil)
	var list struct {
		Items []models.PendingScan `json:"items"`
	}
	decode(t, rr, &list)
	if len(list.Items) != 1 || list.Items[0].ID != queued.Pending.ID {
		t.Fatalf("Expected the queued capture listed, got %+v", list.Items)
	}

	core.Scheduler.SetOnlineStatus(true)
	rr = doRequest(t, r, http.MethodPost, "/api/pending/"+queued.Pending.ID+"/retry", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if core.Queue.Size() != 0 {
		t.Error("Expected queue drained")
	}
	if _, ok := core.Scans.FindByID(queued.Pending.ID); !ok {
		t.Error("Expected record under the pending id")
	}
}

// TestPending_errors tests unknown ids and bad filters
func TestPending_errors(t *testing.T) {
	_, r := setupTestRouter(t)

	if rr := doRequest(t, r, http.MethodPost, "/api/pending/missing/retry", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for retry, got %d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodDelete, "/api/pending/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for delete, got %d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodGet, "/api/pending?status=done", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad status, got %d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodPut, "/api/sync/online", map[string]string{}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without online flag, got %d", rr.Code)
	}
}

// TestDeleteScan tests removal and clearing
func TestDeleteScan(t *testing.T) {
	core, r := setupTestRouter(t)
	core.Scans.Append(models.ScanRecord{ID: "a", CropType: models.CropMaize, IsHealthy: true, Recommendations: []string{}})
	core.Scans.Append(models.ScanRecord{ID: "b", CropType: models.CropMaize, IsHealthy: true, Recommendations: []string{}})

	if rr := doRequest(t, r, http.MethodDelete, "/api/scans/a", nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodGet, "/api/scans/a", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodDelete, "/api/scans", nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if len(core.Scans.History()) != 0 {
		t.Error("Expected history cleared")
	}
}

// TestNotifications tests listing and read state
func TestNotifications(t *testing.T) {
	core, r := setupTestRouter(t)
	n := core.Notifications.Add(models.NotificationInfo, "Rain tomorrow", "Delay spraying")
	before := core.Notifications.UnreadCount()

	rr := doRequest(t, r, http.MethodPost, "/api/notifications/"+n.ID+"/read", nil)
	var unread struct {
		UnreadCount int `json:"unreadCount"`
	}
	decode(t, rr, &unread)
	if unread.UnreadCount != before-1 {
		t.Errorf("Expected unread %d, got %d", before-1, unread.UnreadCount)
	}

	doRequest(t, r, http.MethodPost, "/api/notifications/read", nil)
	if core.Notifications.UnreadCount() != 0 {
		t.Error("Expected all read")
	}

	rr = doRequest(t, r, http.MethodGet, "/api/notifications", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
}

// TestAuth tests the cached session endpoints
func TestAuth(t *testing.T) {
	core, r := setupTestRouter(t)

	if rr := doRequest(t, r, http.MethodPatch, "/api/auth/user", map[string]string{"name": "x"}); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a user, got %d", rr.Code)
	}

	rr := doRequest(t, r, http.MethodPut, "/api/auth/user", models.User{ID: "u1", Name: "Ama"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	rr = doRequest(t, r, http.MethodPatch, "/api/auth/user", map[string]interface{}{
		"farmName":  "Ama Farms",
		"cropTypes": []string{"cocoa"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	user := core.Auth.User()
	if user.FarmName != "Ama Farms" || user.Name != "Ama" || len(user.CropTypes) != 1 {
		t.Errorf("Unexpected user after patch: %+v", user)
	}

	if rr := doRequest(t, r, http.MethodPost, "/api/auth/logout", nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	if core.Auth.CheckAuth() {
		t.Error("Expected signed out")
	}
}
