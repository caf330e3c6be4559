// Package scheduler orchestrates captures between the image pipeline, the detector,
// the record store and the pending-scan queue.
//
// The record store and the queue are independent stores. Every retry appends the
// record and waits for it to be durable before dequeuing the pending item, and
// records reuse the pending item's id, so a crash between the two steps is detected
// on the next attempt and resolved by dequeuing only.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/notifications"
	"github.com/kuapa/kuapa/backend/internal/parser/media"
	"github.com/kuapa/kuapa/backend/internal/scans"
	"github.com/kuapa/kuapa/backend/internal/sync/queue"
	"github.com/kuapa/kuapa/backend/internal/telemetry"
)

// Config holds scheduler configuration.
type Config struct {
	// RetryInterval is how often pending scans are retried while online. Zero
	// disables scheduled retries; retries then only happen on request.
	RetryInterval time.Duration
	// SyncingGrace is how long an item may stay syncing before the startup
	// reconciliation treats it as an interrupted attempt.
	SyncingGrace time.Duration
	// FlushTimeout bounds the wait for the record store to become durable.
	FlushTimeout time.Duration
	// Image bounds captured images.
	Image media.Constraints
	// ThumbnailSize bounds the preview stored with each record.
	ThumbnailSize int
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		RetryInterval: time.Minute,
		SyncingGrace:  2 * time.Minute,
		FlushTimeout:  5 * time.Second,
		Image:         media.DefaultConstraints(),
		ThumbnailSize: 200,
	}
}

// CaptureRequest is a capture handed over by the front end.
type CaptureRequest struct {
	// Image is a data URL or bare base64 payload.
	Image    string
	CropType models.CropType
	UserID   string
	Location *models.GeoPoint
	Notes    string
}

// CaptureResult reports where a capture ended up: as a record, or queued.
type CaptureResult struct {
	Record *models.ScanRecord
	Queued *models.PendingScan
	// ImageFallback is set when the image pipeline failed and the original payload
	// was kept.
	ImageFallback bool
}

// Scheduler coordinates captures and retries.
type Scheduler struct {
	records *scans.Store
	queue   *queue.SyncQueue
	notes   *notifications.Store
	config  Config
	now     func() time.Time

	stopCh          chan struct{}
	wg              sync.WaitGroup
	mu              sync.RWMutex
	isRunning       bool
	isOnline        bool
	retryInProgress bool
	lastRetryTime   time.Time
	inflight        map[string]bool
}

// NewScheduler creates a Scheduler. notes may be nil.
func NewScheduler(records *scans.Store, q *queue.SyncQueue, notes *notifications.Store, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	d := DefaultConfig()
	if cfg.SyncingGrace <= 0 {
		cfg.SyncingGrace = d.SyncingGrace
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = d.FlushTimeout
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = d.ThumbnailSize
	}

	return &Scheduler{
		records:  records,
		queue:    q,
		notes:    notes,
		config:   cfg,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		isOnline: true,
		inflight: make(map[string]bool),
	}
}

func (s *Scheduler) notify(kind models.NotificationType, title, message string) {
	if s.notes != nil {
		s.notes.Add(kind, title, message)
	}
}

// prepare runs the image pipeline, falling back to the original payload when it
// cannot be processed.
func (s *Scheduler) prepare(image string) (processed, thumbnail string, fallback bool) {
	result, err := media.ProcessDataURL(image, s.config.Image)
	if err != nil {
		logging.Warn("image pipeline failed, keeping original payload", map[string]interface{}{
			"error": err.Error(),
		})
		return image, "", true
	}
	processed = result.DataURL()

	if thumb, err := media.Thumbnail(result.Data, s.config.ThumbnailSize); err == nil {
		thumbnail = thumb.DataURL()
	}
	return processed, thumbnail, false
}

// Capture processes and classifies a new capture. When offline, or when detection
// fails, the capture is queued instead; a detection failure is also returned so the
// caller can tell the two apart. The queued capture is never lost.
func (s *Scheduler) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if !req.CropType.Valid() {
		return CaptureResult{}, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown crop type %q", req.CropType))
	}
	if req.Image == "" {
		return CaptureResult{}, apperrors.New(apperrors.ErrInvalid, "image is required")
	}

	image, thumbnail, fallback := s.prepare(req.Image)
	result := CaptureResult{ImageFallback: fallback}

	if !s.IsOnline() {
		pending := s.queue.Enqueue(image, req.CropType)
		telemetry.RecordCount(telemetry.CaptureQueued, 1)
		s.notify(models.NotificationInfo, "Scan saved offline",
			"Your scan will be analysed when you are back online.")
		result.Queued = &pending
		return result, nil
	}

	capture := scans.Capture{
		UserID:       req.UserID,
		ImageURL:     image,
		ThumbnailURL: thumbnail,
		CropType:     req.CropType,
		Location:     req.Location,
		Notes:        req.Notes,
	}
	started := s.now()
	record, err := s.records.StartScan(ctx, capture)
	telemetry.RecordTiming(telemetry.DetectionTiming, s.now().Sub(started))
	if err != nil {
		pending := s.queue.Enqueue(image, req.CropType)
		telemetry.RecordCount(telemetry.CaptureQueued, 1)
		if apperrors.Is(err, apperrors.ErrDetectionInvalid) {
			// Retrying the same payload yields the same rejection.
			s.queue.MarkFailed(pending.ID, err)
			pending, _ = s.queue.Get(pending.ID)
			s.notify(models.NotificationWarning, "Scan needs attention",
				"We could not read the analysis of your scan. Retry it from the pending list.")
		} else {
			s.notify(models.NotificationWarning, "Scan queued",
				"We could not analyse your scan right now. It will be retried.")
		}
		result.Queued = &pending
		return result, err
	}

	// Nothing retries a completed capture, so its cached result is never read again.
	s.records.ForgetDetection(ctx, capture)
	telemetry.RecordCount(telemetry.CaptureCompleted, 1)
	result.Record = &record
	return result, nil
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) flushRecords(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.FlushTimeout)
	defer cancel()
	return s.records.Flush(ctx)
}

// Retry runs one attempt for the pending scan id: syncing, detect, append, wait for
// the record to be durable, dequeue. A failed attempt leaves the item failed.
func (s *Scheduler) Retry(ctx context.Context, id string) (models.ScanRecord, error) {
	item, ok := s.queue.Get(id)
	if !ok {
		return models.ScanRecord{}, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("pending scan %s not found", id))
	}
	if !s.acquire(id) {
		return models.ScanRecord{}, apperrors.New(apperrors.ErrSyncFailed, fmt.Sprintf("pending scan %s is already being retried", id))
	}
	defer s.release(id)

	capture := scans.Capture{
		ID:       item.ID,
		ImageURL: item.ImageData,
		CropType: item.CropType,
	}

	// A previous attempt appended the record but did not get to dequeue.
	if existing, ok := s.records.FindByID(id); ok {
		s.records.Persist()
		if err := s.flushRecords(ctx); err != nil {
			return models.ScanRecord{}, apperrors.Wrap(apperrors.ErrSyncFailed, "record not durable", err)
		}
		s.queue.Dequeue(id)
		s.records.ForgetDetection(ctx, capture)
		telemetry.RecordCount(telemetry.RetryDeduped, 1)
		logging.Info("pending scan already recorded, dequeued", map[string]interface{}{"id": id})
		return existing, nil
	}

	s.queue.MarkSyncing(id)
	if err := s.queue.Flush(ctx); err != nil {
		logging.Warn("syncing transition not durable", map[string]interface{}{
			"id":    id,
			"error": err.Error(),
		})
	}

	if data, _, err := media.DecodeDataURL(item.ImageData); err == nil {
		if thumb, err := media.Thumbnail(data, s.config.ThumbnailSize); err == nil {
			capture.ThumbnailURL = thumb.DataURL()
		}
	}

	started := s.now()
	record, err := s.records.Detect(ctx, capture)
	telemetry.RecordTiming(telemetry.DetectionTiming, s.now().Sub(started))
	if err != nil {
		s.queue.MarkFailed(id, err)
		telemetry.RecordCount(telemetry.RetryFailed, 1)
		return models.ScanRecord{}, apperrors.Wrap(apperrors.ErrSyncFailed, "retry failed", err)
	}

	s.records.Append(record)
	if err := s.flushRecords(ctx); err != nil {
		s.queue.MarkFailed(id, err)
		telemetry.RecordCount(telemetry.RetryFailed, 1)
		return models.ScanRecord{}, apperrors.Wrap(apperrors.ErrSyncFailed, "record not durable", err)
	}
	s.queue.Dequeue(id)
	s.records.ForgetDetection(ctx, capture)

	telemetry.RecordCount(telemetry.RetrySucceeded, 1)
	s.notify(models.NotificationSuccess, "Scan analysed",
		fmt.Sprintf("Your %s scan has been analysed.", item.CropType.Label()))
	logging.Info("pending scan synced", map[string]interface{}{
		"id":       id,
		"attempts": item.Attempts + 1,
	})
	return record, nil
}

// RetryPending retries every pending and failed item in creation order, except
// captures the detector rejected; those are retried only through Retry.
func (s *Scheduler) RetryPending(ctx context.Context) (succeeded, failed int) {
	return s.retryPending(ctx, nil)
}

// retryPending stops between items once ctx is done or stop is closed.
func (s *Scheduler) retryPending(ctx context.Context, stop <-chan struct{}) (succeeded, failed int) {
	for _, item := range s.queue.Retryable() {
		select {
		case <-ctx.Done():
			return succeeded, failed
		case <-stop:
			return succeeded, failed
		default:
		}
		if _, err := s.Retry(ctx, item.ID); err != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

// Reconcile handles items left syncing by an interrupted attempt. Items whose last
// transition is older than SyncingGrace are retried when online, or marked failed
// so a later retry picks them up. Fresher items are left alone. It returns the
// number of stale items found.
func (s *Scheduler) Reconcile(ctx context.Context) int {
	if err := s.queue.WaitHydrated(ctx); err != nil {
		return 0
	}
	if err := s.records.WaitHydrated(ctx); err != nil {
		return 0
	}

	stale := s.queue.StaleSyncing(s.config.SyncingGrace, s.now())
	if len(stale) == 0 {
		return 0
	}
	telemetry.RecordCount(telemetry.ReconcileStale, len(stale))
	logging.Info("reconciling interrupted sync attempts", map[string]interface{}{
		"count":         len(stale),
		"grace_seconds": s.config.SyncingGrace.Seconds(),
	})

	online := s.IsOnline()
	for _, item := range stale {
		if !online {
			s.queue.MarkFailed(item.ID, apperrors.New(apperrors.ErrSyncFailed, "attempt interrupted"))
			continue
		}
		if _, err := s.Retry(ctx, item.ID); err != nil {
			logging.Warn("reconcile retry failed", map[string]interface{}{
				"id":    item.ID,
				"error": err.Error(),
			})
		}
	}
	return len(stale)
}

// Start starts scheduled retries when RetryInterval is set.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	if s.config.RetryInterval > 0 {
		s.wg.Add(1)
		go s.retryLoop(ctx, s.stopCh)
	}
	s.mu.Unlock()

	logging.Info("sync scheduler started", map[string]interface{}{
		"retry_interval_seconds": s.config.RetryInterval.Seconds(),
	})
}

// Stop stops the scheduler and waits for a running retry pass to end.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	logging.Info("sync scheduler stopped")
}

func (s *Scheduler) retryLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if s.IsOnline() {
				s.runRetry(ctx, stop)
			}
		}
	}
}

// runRetry runs one retry pass unless one is already running.
func (s *Scheduler) runRetry(ctx context.Context, stop <-chan struct{}) bool {
	s.mu.Lock()
	if s.retryInProgress {
		s.mu.Unlock()
		logging.Debug("retry pass already in progress, skipping")
		return false
	}
	s.retryInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.retryInProgress = false
		s.lastRetryTime = s.now()
		s.mu.Unlock()
	}()

	succeeded, failed := s.retryPending(ctx, stop)
	if succeeded+failed > 0 {
		logging.Info("retry pass completed", map[string]interface{}{
			"succeeded": succeeded,
			"failed":    failed,
		})
	}
	return true
}

// TriggerRetry starts a retry pass in the background. It returns false when the
// scheduler is stopped or a pass is already running.
func (s *Scheduler) TriggerRetry(ctx context.Context) bool {
	s.mu.Lock()
	if !s.isRunning || s.retryInProgress {
		s.mu.Unlock()
		return false
	}
	stop := s.stopCh
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runRetry(ctx, stop)
	}()
	return true
}

// SetOnlineStatus changes the online status. Coming back online while running
// triggers a retry pass.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = isOnline
	running := s.isRunning
	s.mu.Unlock()

	if wasOnline == isOnline {
		return
	}
	logging.Info("online status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  isOnline,
	})
	if isOnline && running {
		s.TriggerRetry(context.Background())
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	IsRunning       bool           `json:"isRunning"`
	IsOnline        bool           `json:"isOnline"`
	RetryInProgress bool           `json:"retryInProgress"`
	LastRetryTime   *time.Time     `json:"lastRetryTime,omitempty"`
	PendingItems    int            `json:"pendingItems"`
	QueueStats      map[string]int `json:"queueStats"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	status := Status{
		IsRunning:       s.isRunning,
		IsOnline:        s.isOnline,
		RetryInProgress: s.retryInProgress,
	}
	if !s.lastRetryTime.IsZero() {
		t := s.lastRetryTime
		status.LastRetryTime = &t
	}
	s.mu.RUnlock()

	status.PendingItems = len(s.queue.Pending())
	status.QueueStats = s.queue.GetStats()
	return status
}

// IsOnline returns whether the scheduler is in online mode.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
