// Package app assembles the offline core from configuration: the embedded store,
// the persistent stores built on it, the detector and the sync scheduler.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/kuapa/kuapa/backend/internal/auth"
	"github.com/kuapa/kuapa/backend/internal/catalog"
	"github.com/kuapa/kuapa/backend/internal/config"
	"github.com/kuapa/kuapa/backend/internal/detection"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/notifications"
	"github.com/kuapa/kuapa/backend/internal/scans"
	"github.com/kuapa/kuapa/backend/internal/sync/queue"
	"github.com/kuapa/kuapa/backend/internal/sync/scheduler"
	"github.com/kuapa/kuapa/backend/internal/telemetry"
)

// App holds the running core.
type App struct {
	Config        *config.Config
	KV            kv.ListAdapter
	Catalog       *catalog.Cache
	Detector      detection.Detector
	Scans         *scans.Store
	Queue         *queue.SyncQueue
	Notifications *notifications.Store
	Auth          *auth.Store
	Scheduler     *scheduler.Scheduler

	closeKV func() error
}

// Open opens the embedded store in cfg.DataDir and builds the core on it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := kv.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.closeKV = store.Close
	return a, nil
}

// New builds the core on adapter. It waits for every store to rehydrate and
// reconciles interrupted sync attempts before returning.
func New(ctx context.Context, cfg *config.Config, adapter kv.ListAdapter) (*App, error) {
	if cfg.Telemetry {
		telemetry.Enable()
	}

	a := &App{
		Config:  cfg,
		KV:      adapter,
		Catalog: catalog.New(adapter),
	}

	if n, err := a.Catalog.EnsureSeeded(ctx); err != nil {
		logging.Warn("condition catalog not seeded, using built-in list", map[string]interface{}{
			"error": err.Error(),
		})
	} else if n > 0 {
		logging.Info("condition catalog seeded", map[string]interface{}{"count": n})
	}

	a.Detector = a.newDetector()

	a.Scans = scans.New(adapter, scans.Options{
		MaxHistory: cfg.History.MaxRecords,
		Detector:   a.Detector,
	})
	a.Queue = queue.NewSyncQueue(adapter, queue.Options{})
	a.Notifications = notifications.New(adapter, notifications.Options{})
	a.Auth = auth.New(adapter, nil)

	for _, wait := range []func(context.Context) error{
		a.Scans.WaitHydrated,
		a.Queue.WaitHydrated,
		a.Notifications.WaitHydrated,
		a.Auth.WaitHydrated,
	} {
		if err := wait(ctx); err != nil {
			return nil, err
		}
	}

	a.Scheduler = scheduler.NewScheduler(a.Scans, a.Queue, a.Notifications, &scheduler.Config{
		RetryInterval: cfg.Sync.RetryInterval,
		SyncingGrace:  cfg.Sync.SyncingGrace,
		Image:         cfg.Image.Constraints,
		ThumbnailSize: cfg.Image.ThumbnailSize,
	})

	if n := a.Scheduler.Reconcile(ctx); n > 0 {
		logging.Info("interrupted sync attempts reconciled", map[string]interface{}{"count": n})
	}

	logging.Info("core ready", map[string]interface{}{
		"history": len(a.Scans.History()),
		"pending": a.Queue.Size(),
		"mock":    cfg.Detection.UseMock(),
	})
	return a, nil
}

func (a *App) newDetector() detection.Detector {
	var next detection.Detector
	if a.Config.Detection.UseMock() {
		opts := []detection.MockOption{
			detection.WithConditions(func(ctx context.Context, crop models.CropType) []models.Condition {
				if cached := a.Catalog.ByCrop(ctx, crop); len(cached) > 0 {
					return cached
				}
				return catalog.SeedByCrop(crop)
			}),
		}
		if d := a.Config.Detection.MockLatency; d > 0 {
			opts = append(opts, detection.WithLatency(d/2, d))
		}
		next = detection.NewMock(opts...)
	} else {
		next = detection.NewClient(a.Config.Detection.Endpoint, a.Config.Detection.Timeout)
	}
	return detection.NewIdempotent(next, a.KV)
}

// Start starts scheduled retries.
func (a *App) Start(ctx context.Context) {
	a.Scheduler.Start(ctx)
}

// Close stops the scheduler, flushes every store and closes the embedded store.
func (a *App) Close(timeout time.Duration) error {
	a.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, closeStore := range []func(context.Context) error{
		a.Scans.Close,
		a.Queue.Close,
		a.Notifications.Close,
		a.Auth.Close,
	} {
		if err := closeStore(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.closeKV != nil {
		if err := a.closeKV(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		logging.Error("core closed with errors", err)
		return err
	}
	logging.Info("core closed")
	return nil
}
