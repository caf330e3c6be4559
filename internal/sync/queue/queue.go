// Package queue tracks captures whose detection round-trip has not completed.
//
// Items move pending -> syncing -> failed and back to syncing on a retry driven by
// the caller. The queue never retries on its own and never resets a syncing item;
// reconciling items left syncing by a crash is the caller's job (see StaleSyncing).
package queue

import (
	"context"
	"sync/atomic"
	"time"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/store"
	"github.com/kuapa/kuapa/backend/internal/uuid"
)

// StoreName is the persisted envelope key.
const StoreName = "kuapa-pending-scans"

// State is the queue content in creation order.
type State struct {
	Items []models.PendingScan `json:"items"`
}

// Options configures a SyncQueue.
type Options struct {
	Now      func() time.Time
	Reporter func(name string, err error)
}

// SyncQueue is the persistent pending-scan queue.
type SyncQueue struct {
	st  *store.Store[State, State]
	now func() time.Time
}

// NewSyncQueue creates the queue and starts its rehydration.
func NewSyncQueue(adapter kv.Adapter, opts Options) *SyncQueue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SyncQueue{
		now: opts.Now,
		st: store.New(adapter, State{}, store.Options[State, State]{
			Name:       StoreName,
			Reporter:   opts.Reporter,
			Partialize: func(s State) State { return s },
			Merge:      func(_ State, p State) State { return p },
		}),
	}
}

// Enqueue adds a capture in the pending state. It never blocks on the network.
func (q *SyncQueue) Enqueue(imageData string, crop models.CropType) models.PendingScan {
	ts := models.Timestamp(q.now())
	item := models.PendingScan{
		ID:         uuid.New(),
		ImageData:  imageData,
		CropType:   crop,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		SyncStatus: models.SyncStatusPending,
	}

	q.st.SetState(func(s State) State {
		items := make([]models.PendingScan, 0, len(s.Items)+1)
		items = append(items, s.Items...)
		s.Items = append(items, item)
		return s
	})

	logging.Info("pending scan enqueued", map[string]interface{}{
		"id":   item.ID,
		"crop": string(crop),
	})
	return item
}

// update applies fn to the item with id and reports whether the item was found.
// Before rehydration the patch is replayed against the loaded items, so an item
// that only exists on disk is still updated even though update reports false.
func (q *SyncQueue) update(id string, fn func(*models.PendingScan)) bool {
	if q.st.HasHydrated() {
		if _, ok := q.Get(id); !ok {
			return false
		}
	}
	var found atomic.Bool
	q.st.SetState(func(s State) State {
		idx := indexOf(s.Items, id)
		if idx < 0 {
			return s
		}
		items := make([]models.PendingScan, len(s.Items))
		copy(items, s.Items)
		fn(&items[idx])
		s.Items = items
		found.Store(true)
		return s
	})
	return found.Load()
}

func indexOf(items []models.PendingScan, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// MarkSyncing records the start of a retry attempt. Unknown ids are ignored.
func (q *SyncQueue) MarkSyncing(id string) bool {
	ts := models.Timestamp(q.now())
	ok := q.update(id, func(item *models.PendingScan) {
		item.SyncStatus = models.SyncStatusSyncing
		item.NeedsReview = false
		item.Attempts++
		item.UpdatedAt = ts
	})
	if ok {
		logging.Debug("pending scan syncing", map[string]interface{}{"id": id})
	}
	return ok
}

// MarkFailed records a failed attempt. Unknown ids are ignored.
func (q *SyncQueue) MarkFailed(id string, cause error) bool {
	ts := models.Timestamp(q.now())
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	rejected := apperrors.Is(cause, apperrors.ErrDetectionInvalid)
	ok := q.update(id, func(item *models.PendingScan) {
		item.SyncStatus = models.SyncStatusFailed
		item.LastError = msg
		item.NeedsReview = rejected
		item.UpdatedAt = ts
	})
	if ok {
		logging.Warn("pending scan failed", map[string]interface{}{
			"id":    id,
			"error": msg,
		})
	}
	return ok
}

// Dequeue removes the item with id unconditionally. Callers must only dequeue once
// the corresponding record is durable in the record store.
// Before hydration the result only reflects in-memory items; the removal still
// replays over the persisted queue.
func (q *SyncQueue) Dequeue(id string) bool {
	if q.st.HasHydrated() {
		if _, ok := q.Get(id); !ok {
			return false
		}
	}
	var found atomic.Bool
	q.st.SetState(func(s State) State {
		idx := indexOf(s.Items, id)
		if idx < 0 {
			return s
		}
		items := make([]models.PendingScan, 0, len(s.Items)-1)
		items = append(items, s.Items[:idx]...)
		items = append(items, s.Items[idx+1:]...)
		s.Items = items
		found.Store(true)
		return s
	})
	logging.Info("pending scan dequeued", map[string]interface{}{"id": id})
	return found.Load()
}

// Get returns the item with id.
func (q *SyncQueue) Get(id string) (models.PendingScan, bool) {
	for _, item := range q.st.GetState().Items {
		if item.ID == id {
			return item, true
		}
	}
	return models.PendingScan{}, false
}

// List returns every item in creation order.
func (q *SyncQueue) List() []models.PendingScan {
	items := q.st.GetState().Items
	out := make([]models.PendingScan, len(items))
	copy(out, items)
	return out
}

// ByStatus returns the items in status, in creation order.
func (q *SyncQueue) ByStatus(status models.SyncStatus) []models.PendingScan {
	var out []models.PendingScan
	for _, item := range q.st.GetState().Items {
		if item.SyncStatus == status {
			out = append(out, item)
		}
	}
	return out
}

// Pending returns the items eligible for a retry attempt: pending and failed ones.
func (q *SyncQueue) Pending() []models.PendingScan {
	var out []models.PendingScan
	for _, item := range q.st.GetState().Items {
		if item.SyncStatus != models.SyncStatusSyncing {
			out = append(out, item)
		}
	}
	return out
}

// Retryable returns the pending and failed items a scheduled pass may retry,
// leaving out captures the detector rejected.
func (q *SyncQueue) Retryable() []models.PendingScan {
	var out []models.PendingScan
	for _, item := range q.Pending() {
		if !item.NeedsReview {
			out = append(out, item)
		}
	}
	return out
}

// StaleSyncing returns syncing items whose last transition is older than grace at now.
// These are attempts interrupted by a crash; whether they are retried is for the
// caller to decide.
func (q *SyncQueue) StaleSyncing(grace time.Duration, now time.Time) []models.PendingScan {
	var out []models.PendingScan
	for _, item := range q.st.GetState().Items {
		if item.SyncStatus != models.SyncStatusSyncing {
			continue
		}
		if now.Sub(item.UpdatedAtTime()) >= grace {
			out = append(out, item)
		}
	}
	return out
}

// Size returns the number of queued items.
func (q *SyncQueue) Size() int {
	return len(q.st.GetState().Items)
}

// Clear removes every item.
func (q *SyncQueue) Clear() {
	q.st.SetState(func(State) State { return State{Items: []models.PendingScan{}} })
	logging.Info("pending scan queue cleared")
}

// GetStats returns queue statistics.
func (q *SyncQueue) GetStats() map[string]int {
	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"syncing": 0,
		"failed":  0,
	}
	for _, item := range q.st.GetState().Items {
		stats["total"]++
		stats[string(item.SyncStatus)]++
	}
	return stats
}

// Subscribe registers fn for every queue transition.
func (q *SyncQueue) Subscribe(fn store.Listener[State]) func() { return q.st.Subscribe(fn) }

// HasHydrated reports whether the persisted queue has been loaded.
func (q *SyncQueue) HasHydrated() bool { return q.st.HasHydrated() }

// WaitHydrated blocks until the persisted queue has been loaded.
func (q *SyncQueue) WaitHydrated(ctx context.Context) error { return q.st.WaitHydrated(ctx) }

// Flush waits until the latest queue content is durable.
func (q *SyncQueue) Flush(ctx context.Context) error { return q.st.Flush(ctx) }

// Close flushes and stops the queue.
func (q *SyncQueue) Close(ctx context.Context) error { return q.st.Close(ctx) }
