// Package main tests for desktop server initialization and routing.
// These tests verify server setup, route registration, and the websocket push.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kuapa/kuapa/backend/internal/app"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/models"
)

// setupTestCore builds the core over an in-memory store
func setupTestCore(t *testing.T) *app.App {
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
	return core
}

func TestRouter_health(t *testing.T) {
	hub := NewWSHub()
	defer hub.Close()
	r := newRouter(setupTestCore(t), hub)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid health body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != Version {
		t.Errorf("Unexpected health body: %v", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestRouter_routesRegistered(t *testing.T) {
	hub := NewWSHub()
	defer hub.Close()
	r := newRouter(setupTestCore(t), hub)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/scans"},
		{http.MethodGet, "/api/scans/stats"},
		{http.MethodGet, "/api/pending"},
		{http.MethodGet, "/api/sync/status"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodGet, "/api/auth"},
		{http.MethodGet, "/api/telemetry"},
	}
	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s %s: expected 200, got %d", route.method, route.path, rr.Code)
		}
	}
}

func TestWebSocket_pushesStoreChanges(t *testing.T) {
	core := setupTestCore(t)
	hub := NewWSHub()
	defer hub.Close()
	stop := hub.Watch(core)
	defer stop()

	server := httptest.NewServer(newRouter(core, hub))
	defer server.Close()

	// Dialer sends no Origin header, as a native client would
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventNotificationsChanged},
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]interface{}
	if err := conn.ReadJSON(&ack); err != nil || ack["action"] != "subscribe_ack" {
		t.Fatalf("Expected subscribe_ack, got %v (%v)", ack, err)
	}

	// Not subscribed: must not arrive.
	core.Queue.Enqueue("data:image/jpeg;base64,AA==", models.CropCocoa)
	core.Notifications.Add(models.NotificationInfo, "Hello", "World")

	var envelope struct {
		Type string `json:"type"`
		Data struct {
			UnreadCount int `json:"unreadCount"`
		} `json:"data"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("Failed to read push: %v", err)
	}
	if envelope.Type != EventNotificationsChanged {
		t.Errorf("Expected %s, got %s", EventNotificationsChanged, envelope.Type)
	}
	if envelope.Data.UnreadCount != core.Notifications.UnreadCount() {
		t.Errorf("Expected unread %d, got %d", core.Notifications.UnreadCount(), envelope.Data.UnreadCount)
	}
	if envelope.Timestamp == 0 {
		t.Error("Expected timestamp")
	}
}

func TestWebSocket_rejectsForeignOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8090", true},
		{"http://[::1]:8090", true},
		{"https://evil.example.com", false},
		{"http://localhost.evil.example.com", false},
		{"null", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = "localhost:8090"
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := upgrader.CheckOrigin(req); got != tt.want {
			t.Errorf("Origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}

func TestWebSocket_foreignOriginHandshakeRefused(t *testing.T) {
	core := setupTestCore(t)
	hub := NewWSHub()
	defer hub.Close()

	server := httptest.NewServer(newRouter(core, hub))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("Expected handshake from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}

func TestRun_servesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "kuapa.yaml")
	content := "data_dir: " + filepath.Join(dir, "data") + "\nlisten_addr: 127.0.0.1:0\nsync:\n  retry_interval: 0s\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		done <- run(ctx, []string{"-config", configPath, "-env", filepath.Join(dir, "none.env")}, &out, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for server")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}
