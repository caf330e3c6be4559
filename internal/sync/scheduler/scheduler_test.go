// Package scheduler tests for capture and retry orchestration.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuapa/kuapa/backend/internal/detection"
	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/notifications"
	"github.com/kuapa/kuapa/backend/internal/parser/media"
	"github.com/kuapa/kuapa/backend/internal/scans"
	"github.com/kuapa/kuapa/backend/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingDetector returns a healthy result, or err when set.
type countingDetector struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (d *countingDetector) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *countingDetector) Detect(_ context.Context, _ string, _ models.CropType) (detection.Result, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return detection.Result{}, d.err
	}
	return detection.Result{IsHealthy: true, Confidence: 92, Recommendations: []string{"Keep monitoring"}}, nil
}

// switchableAdapter fails every Set while failing is true.
type switchableAdapter struct {
	*kv.Memory
	failing atomic.Bool
}

func (a *switchableAdapter) Set(ctx context.Context, key, value string) bool {
	if a.failing.Load() {
		return false
	}
	return a.Memory.Set(ctx, key, value)
}

type fixture struct {
	records  *scans.Store
	queue    *queue.SyncQueue
	notes    *notifications.Store
	detector *countingDetector
	clock    *clock
	sched    *Scheduler
}

// createTestScheduler creates a scheduler over in-memory stores.
func createTestScheduler(t *testing.T, recordsAdapter kv.Adapter) *fixture {
	t.Helper()
	return createCachingScheduler(t, recordsAdapter, nil)
}

// createCachingScheduler is createTestScheduler with detection results cached in
// cache when it is not nil.
func createCachingScheduler(t *testing.T, recordsAdapter kv.Adapter, cache kv.Adapter) *fixture {
	t.Helper()
	if recordsAdapter == nil {
		recordsAdapter = kv.NewMemory()
	}
	shared := kv.NewMemory()
	c := &clock{now: baseTime}
	det := &countingDetector{}
	var detector detection.Detector = det
	if cache != nil {
		detector = detection.NewIdempotent(det, cache)
	}

	f := &fixture{
		records:  scans.New(recordsAdapter, scans.Options{Detector: detector, Now: c.Now}),
		queue:    queue.NewSyncQueue(shared, queue.Options{Now: c.Now}),
		notes:    notifications.New(shared, notifications.Options{Now: c.Now}),
		detector: det,
		clock:    c,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, wait := range []func(context.Context) error{f.records.WaitHydrated, f.queue.WaitHydrated, f.notes.WaitHydrated} {
		if err := wait(ctx); err != nil {
			t.Fatalf("Hydration failed: %v", err)
		}
	}

	f.sched = NewScheduler(f.records, f.queue, f.notes, &Config{
		SyncingGrace:  2 * time.Minute,
		FlushTimeout:  time.Second,
		Image:         media.Constraints{MaxWidth: 64, MaxHeight: 64, Quality: 80},
		ThumbnailSize: 16,
	})
	f.sched.now = c.Now

	t.Cleanup(func() {
		f.sched.Stop()
		f.records.Close(context.Background())
		f.queue.Close(context.Background())
		f.notes.Close(context.Background())
	})
	return f
}

func testImage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 40, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return media.EncodeDataURL(buf.Bytes(), "image/jpeg")
}

func latestNotification(t *testing.T, s *notifications.Store) models.Notification {
	t.Helper()
	list := s.List()
	if len(list) == 0 {
		t.Fatal("Expected a notification")
	}
	return list[0]
}

// =====================================================
// Config Tests
// =====================================================

// TestDefaultConfig tests default configuration values
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RetryInterval != time.Minute {
		t.Errorf("Expected RetryInterval 1m, got %v", config.RetryInterval)
	}
	if config.SyncingGrace != 2*time.Minute {
		t.Errorf("Expected SyncingGrace 2m, got %v", config.SyncingGrace)
	}
	if config.ThumbnailSize != 200 {
		t.Errorf("Expected ThumbnailSize 200, got %d", config.ThumbnailSize)
	}
	if config.Image.MaxWidth != 1920 {
		t.Errorf("Expected default image bounds, got %d", config.Image.MaxWidth)
	}
}

// TestNewScheduler_nilConfig tests that nil config falls back to defaults
func TestNewScheduler_nilConfig(t *testing.T) {
	f := createTestScheduler(t, nil)
	s := NewScheduler(f.records, f.queue, nil, nil)

	if s.config.SyncingGrace != 2*time.Minute {
		t.Errorf("Expected default grace, got %v", s.config.SyncingGrace)
	}
	if !s.IsOnline() {
		t.Error("Expected scheduler to start online")
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to start stopped")
	}
}

// =====================================================
// Capture Tests
// =====================================================

// TestCapture_online tests a successful capture becomes a record
func TestCapture_online(t *testing.T) {
	f := createTestScheduler(t, nil)

	result, err := f.sched.Capture(context.Background(), CaptureRequest{
		Image:    testImage(t, 320, 240),
		CropType: models.CropCocoa,
		Notes:    "north field",
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if result.Record == nil || result.Queued != nil {
		t.Fatalf("Expected a record and nothing queued, got %+v", result)
	}
	if result.ImageFallback {
		t.Error("Expected the image pipeline to succeed")
	}

	data, _, err := media.DecodeDataURL(result.Record.ImageURL)
	if err != nil {
		t.Fatalf("Stored image is not a data URL: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Stored image does not decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("Stored image %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
	if result.Record.ThumbnailURL == result.Record.ImageURL {
		t.Error("Expected a separate thumbnail")
	}
	if result.Record.Notes != "north field" {
		t.Errorf("Notes = %q", result.Record.Notes)
	}

	if got := f.records.History(); len(got) != 1 || got[0].ID != result.Record.ID {
		t.Errorf("Expected record appended, got %d records", len(got))
	}
	if f.queue.Size() != 0 {
		t.Errorf("Expected empty queue, got %d", f.queue.Size())
	}
}

// TestCapture_detectionFailureQueues tests failed detection is queued and reported
func TestCapture_detectionFailureQueues(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.detector.fail(errors.New("network unreachable"))

	result, err := f.sched.Capture(context.Background(), CaptureRequest{
		Image:    testImage(t, 100, 100),
		CropType: models.CropMaize,
	})
	if !apperrors.Is(err, apperrors.ErrDetectionFailed) {
		t.Fatalf("Expected DETECTION_FAILED, got %v", err)
	}
	if result.Queued == nil {
		t.Fatal("Expected the capture to be queued")
	}
	if result.Queued.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected pending, got %s", result.Queued.SyncStatus)
	}
	if f.queue.Size() != 1 || len(f.records.History()) != 0 {
		t.Errorf("Expected 1 queued and 0 records, got %d and %d", f.queue.Size(), len(f.records.History()))
	}
	if n := latestNotification(t, f.notes); n.Type != models.NotificationWarning {
		t.Errorf("Expected warning notification, got %s", n.Type)
	}
}

// TestCapture_invalidResultNeedsReview tests a rejected capture is kept but left out of scheduled passes
func TestCapture_invalidResultNeedsReview(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.detector.fail(apperrors.New(apperrors.ErrDetectionInvalid, "confidence out of range"))
	ctx := context.Background()

	result, err := f.sched.Capture(ctx, CaptureRequest{
		Image:    testImage(t, 60, 60),
		CropType: models.CropPlantain,
	})
	if !apperrors.Is(err, apperrors.ErrDetectionInvalid) {
		t.Fatalf("Expected DETECTION_INVALID_RESULT, got %v", err)
	}
	if result.Queued == nil {
		t.Fatal("Expected the capture to be kept in the queue")
	}
	if result.Queued.SyncStatus != models.SyncStatusFailed || !result.Queued.NeedsReview {
		t.Errorf("Expected failed and needing review, got %+v", result.Queued)
	}

	calls := f.detector.calls.Load()
	succeeded, failed := f.sched.RetryPending(ctx)
	if succeeded+failed != 0 || f.detector.calls.Load() != calls {
		t.Errorf("Expected scheduled pass to skip the rejected capture, got %d/%d", succeeded, failed)
	}

	f.detector.fail(nil)
	if _, err := f.sched.Retry(ctx, result.Queued.ID); err != nil {
		t.Fatalf("Explicit retry failed: %v", err)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected explicit retry to dequeue")
	}
}

// TestCapture_offlineQueues tests offline captures skip detection
func TestCapture_offlineQueues(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.sched.SetOnlineStatus(false)

	result, err := f.sched.Capture(context.Background(), CaptureRequest{
		Image:    testImage(t, 100, 100),
		CropType: models.CropRice,
	})
	if err != nil {
		t.Fatalf("Offline capture should not fail: %v", err)
	}
	if result.Queued == nil {
		t.Fatal("Expected the capture to be queued")
	}
	if f.detector.calls.Load() != 0 {
		t.Errorf("Expected no detection while offline, got %d calls", f.detector.calls.Load())
	}
}

// TestCapture_imageFallback tests an undecodable payload is kept as is
func TestCapture_imageFallback(t *testing.T) {
	f := createTestScheduler(t, nil)
	payload := media.EncodeDataURL([]byte("not really an image"), "image/jpeg")

	result, err := f.sched.Capture(context.Background(), CaptureRequest{Image: payload, CropType: models.CropCassava})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !result.ImageFallback {
		t.Error("Expected ImageFallback")
	}
	if result.Record.ImageURL != payload {
		t.Error("Expected the original payload to be stored")
	}
}

// TestCapture_invalidRequest tests request validation
func TestCapture_invalidRequest(t *testing.T) {
	f := createTestScheduler(t, nil)

	tests := []CaptureRequest{
		{Image: testImage(t, 10, 10), CropType: "coffee"},
		{CropType: models.CropCocoa},
	}
	for _, req := range tests {
		if _, err := f.sched.Capture(context.Background(), req); !apperrors.Is(err, apperrors.ErrInvalid) {
			t.Errorf("Capture(%q) = %v, want INVALID", req.CropType, err)
		}
	}
	if f.queue.Size() != 0 {
		t.Error("Invalid requests should not be queued")
	}
}

// =====================================================
// Retry Tests
// =====================================================

// TestRetry_success tests a retry records the scan and dequeues it
func TestRetry_success(t *testing.T) {
	f := createTestScheduler(t, nil)
	pending := f.queue.Enqueue(testImage(t, 80, 60), models.CropTomato)

	record, err := f.sched.Retry(context.Background(), pending.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if record.ID != pending.ID {
		t.Errorf("Expected record to reuse pending id %s, got %s", pending.ID, record.ID)
	}
	if _, ok := f.records.FindByID(pending.ID); !ok {
		t.Error("Expected record in history")
	}
	if f.queue.Size() != 0 {
		t.Errorf("Expected item dequeued, queue size %d", f.queue.Size())
	}
	if n := latestNotification(t, f.notes); n.Type != models.NotificationSuccess {
		t.Errorf("Expected success notification, got %s", n.Type)
	}
}

// TestRetry_releasesCachedResult tests completed captures leave no cached detection behind
func TestRetry_releasesCachedResult(t *testing.T) {
	cache := kv.NewMemory()
	f := createCachingScheduler(t, nil, cache)
	ctx := context.Background()

	if _, err := f.sched.Capture(ctx, CaptureRequest{Image: testImage(t, 40, 40), CropType: models.CropCocoa}); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if keys := cache.Keys(ctx, detection.CacheKeyPrefix); len(keys) != 0 {
		t.Errorf("Expected no cached result after capture, got %v", keys)
	}

	pending := f.queue.Enqueue(testImage(t, 50, 30), models.CropCocoa)
	if _, err := f.sched.Retry(ctx, pending.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if keys := cache.Keys(ctx, detection.CacheKeyPrefix); len(keys) != 0 {
		t.Errorf("Expected no cached result after retry, got %v", keys)
	}
}

// TestRetry_failure tests a failed retry leaves the item failed
func TestRetry_failure(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.detector.fail(errors.New("timeout"))
	pending := f.queue.Enqueue(testImage(t, 80, 60), models.CropTomato)

	_, err := f.sched.Retry(context.Background(), pending.ID)
	if !apperrors.Is(err, apperrors.ErrSyncFailed) {
		t.Fatalf("Expected SYNC_FAILED, got %v", err)
	}
	if !apperrors.Is(err, apperrors.ErrDetectionFailed) {
		t.Errorf("Expected the detection cause to be kept, got %v", err)
	}

	item, ok := f.queue.Get(pending.ID)
	if !ok {
		t.Fatal("Expected item to stay queued")
	}
	if item.SyncStatus != models.SyncStatusFailed || item.Attempts != 1 {
		t.Errorf("Expected failed after 1 attempt, got %s after %d", item.SyncStatus, item.Attempts)
	}

	// A later retry from failed succeeds.
	f.detector.fail(nil)
	if _, err := f.sched.Retry(context.Background(), pending.ID); err != nil {
		t.Fatalf("Second retry failed: %v", err)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected item dequeued after second retry")
	}
}

// TestRetry_notFound tests retrying an unknown id
func TestRetry_notFound(t *testing.T) {
	f := createTestScheduler(t, nil)

	if _, err := f.sched.Retry(context.Background(), "missing"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

// TestRetry_alreadyRecorded tests a crash between append and dequeue is resolved
// without a second detection
func TestRetry_alreadyRecorded(t *testing.T) {
	f := createTestScheduler(t, nil)
	pending := f.queue.Enqueue(testImage(t, 40, 40), models.CropPlantain)
	f.queue.MarkSyncing(pending.ID)
	f.records.Append(models.ScanRecord{
		ID:              pending.ID,
		CropType:        models.CropPlantain,
		IsHealthy:       true,
		Confidence:      90,
		Recommendations: []string{},
		CreatedAt:       models.Timestamp(baseTime),
	})

	if _, err := f.sched.Retry(context.Background(), pending.ID); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if f.detector.calls.Load() != 0 {
		t.Errorf("Expected no detection, got %d calls", f.detector.calls.Load())
	}
	if f.queue.Size() != 0 {
		t.Error("Expected item dequeued")
	}
	if len(f.records.History()) != 1 {
		t.Errorf("Expected exactly one record, got %d", len(f.records.History()))
	}
}

// TestRetry_recordNotDurable tests the item is kept when the record cannot be persisted
func TestRetry_recordNotDurable(t *testing.T) {
	adapter := &switchableAdapter{Memory: kv.NewMemory()}
	f := createTestScheduler(t, adapter)
	pending := f.queue.Enqueue(testImage(t, 40, 40), models.CropPepper)
	adapter.failing.Store(true)

	_, err := f.sched.Retry(context.Background(), pending.ID)
	if !apperrors.Is(err, apperrors.ErrSyncFailed) {
		t.Fatalf("Expected SYNC_FAILED, got %v", err)
	}
	item, ok := f.queue.Get(pending.ID)
	if !ok || item.SyncStatus != models.SyncStatusFailed {
		t.Fatalf("Expected item kept as failed, got %+v", item)
	}

	// Storage recovers: the next retry finds the record and only dequeues.
	adapter.failing.Store(false)
	if _, err := f.sched.Retry(context.Background(), pending.ID); err != nil {
		t.Fatalf("Retry after recovery failed: %v", err)
	}
	if f.detector.calls.Load() != 1 {
		t.Errorf("Expected a single detection, got %d", f.detector.calls.Load())
	}
	if f.queue.Size() != 0 {
		t.Error("Expected item dequeued")
	}
}

// TestRetryPending tests a pass over the queue
func TestRetryPending(t *testing.T) {
	f := createTestScheduler(t, nil)
	for i := 0; i < 3; i++ {
		f.queue.Enqueue(testImage(t, 20, 20), models.CropCocoa)
	}

	succeeded, failed := f.sched.RetryPending(context.Background())
	if succeeded != 3 || failed != 0 {
		t.Errorf("Expected 3 succeeded, got %d succeeded %d failed", succeeded, failed)
	}
	if len(f.records.History()) != 3 {
		t.Errorf("Expected 3 records, got %d", len(f.records.History()))
	}
}

// =====================================================
// Reconcile Tests
// =====================================================

// TestReconcile_staleOnly tests only items past the grace period are retried
func TestReconcile_staleOnly(t *testing.T) {
	f := createTestScheduler(t, nil)
	stale := f.queue.Enqueue(testImage(t, 20, 20), models.CropCocoa)
	f.queue.MarkSyncing(stale.ID)

	f.clock.Advance(5 * time.Minute)
	fresh := f.queue.Enqueue(testImage(t, 20, 20), models.CropCocoa)
	f.queue.MarkSyncing(fresh.ID)

	if n := f.sched.Reconcile(context.Background()); n != 1 {
		t.Fatalf("Expected 1 stale item, got %d", n)
	}
	if _, ok := f.queue.Get(stale.ID); ok {
		t.Error("Expected stale item retried and dequeued")
	}
	item, ok := f.queue.Get(fresh.ID)
	if !ok || item.SyncStatus != models.SyncStatusSyncing {
		t.Errorf("Expected fresh item left syncing, got %+v", item)
	}
}

// TestReconcile_offline tests stale items are marked failed while offline
func TestReconcile_offline(t *testing.T) {
	f := createTestScheduler(t, nil)
	stale := f.queue.Enqueue(testImage(t, 20, 20), models.CropCocoa)
	f.queue.MarkSyncing(stale.ID)
	f.clock.Advance(10 * time.Minute)
	f.sched.SetOnlineStatus(false)

	if n := f.sched.Reconcile(context.Background()); n != 1 {
		t.Fatalf("Expected 1 stale item, got %d", n)
	}
	item, _ := f.queue.Get(stale.ID)
	if item.SyncStatus != models.SyncStatusFailed {
		t.Errorf("Expected failed, got %s", item.SyncStatus)
	}
	if f.detector.calls.Load() != 0 {
		t.Error("Expected no detection while offline")
	}
}

// =====================================================
// Lifecycle Tests
// =====================================================

// TestScheduler_StartStop tests start and stop are idempotent
func TestScheduler_StartStop(t *testing.T) {
	f := createTestScheduler(t, nil)
	ctx := context.Background()

	f.sched.Start(ctx)
	f.sched.Start(ctx)
	if !f.sched.IsRunning() {
		t.Error("Expected scheduler running")
	}

	f.sched.Stop()
	f.sched.Stop()
	if f.sched.IsRunning() {
		t.Error("Expected scheduler stopped")
	}
}

// TestScheduler_restart tests the retry loop runs again after Stop then Start
func TestScheduler_restart(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.sched.config.RetryInterval = 20 * time.Millisecond

	f.sched.Start(context.Background())
	f.sched.Stop()
	if f.sched.TriggerRetry(context.Background()) {
		t.Error("Expected TriggerRetry refused while stopped")
	}

	f.queue.Enqueue(testImage(t, 20, 20), models.CropTomato)
	f.sched.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected the restarted loop to drain the queue")
	}
}

// TestScheduler_TriggerRetry tests a triggered pass drains the queue while running
func TestScheduler_TriggerRetry(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.queue.Enqueue(testImage(t, 20, 20), models.CropPepper)
	f.sched.Start(context.Background())

	if !f.sched.TriggerRetry(context.Background()) {
		t.Fatal("Expected TriggerRetry to start a pass")
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected the triggered pass to drain the queue")
	}
}

// TestScheduler_periodicRetry tests the ticker drives retries
func TestScheduler_periodicRetry(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.sched.config.RetryInterval = 20 * time.Millisecond
	f.queue.Enqueue(testImage(t, 20, 20), models.CropMaize)

	f.sched.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected the periodic pass to drain the queue")
	}
	if status := f.sched.GetStatus(); status.LastRetryTime == nil {
		t.Error("Expected LastRetryTime to be set")
	}
}

// TestScheduler_backOnline tests coming back online triggers a retry
func TestScheduler_backOnline(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.sched.SetOnlineStatus(false)
	f.sched.Start(context.Background())
	f.queue.Enqueue(testImage(t, 20, 20), models.CropCassava)

	f.sched.SetOnlineStatus(true)

	deadline := time.Now().Add(2 * time.Second)
	for f.queue.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.queue.Size() != 0 {
		t.Error("Expected reconnecting to drain the queue")
	}
}

// TestScheduler_GetStatus tests the status snapshot
func TestScheduler_GetStatus(t *testing.T) {
	f := createTestScheduler(t, nil)
	f.queue.Enqueue(testImage(t, 20, 20), models.CropRice)
	f.sched.SetOnlineStatus(false)

	status := f.sched.GetStatus()
	if status.IsRunning || status.IsOnline {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.PendingItems != 1 || status.QueueStats["pending"] != 1 {
		t.Errorf("Expected 1 pending item, got %+v", status)
	}
	if status.LastRetryTime != nil {
		t.Error("Expected no retry yet")
	}
}

// TestScheduler_concurrentRetry tests the same item is never retried twice at once
func TestScheduler_concurrentRetry(t *testing.T) {
	f := createTestScheduler(t, nil)
	pending := f.queue.Enqueue(testImage(t, 20, 20), models.CropCocoa)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.sched.Retry(context.Background(), pending.ID)
		}()
	}
	wg.Wait()

	if f.queue.Size() != 0 {
		t.Error("Expected item dequeued")
	}
	if got := len(f.records.History()); got != 1 {
		t.Errorf("Expected one record, got %d", got)
	}
	if _, ok := f.records.FindByID(pending.ID); !ok {
		t.Error("Expected record for pending id")
	}
}
