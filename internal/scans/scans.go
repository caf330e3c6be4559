// Package scans is the record store: the bounded, most-recent-first scan history
// persisted under "kuapa-scans", plus the transient scanning state shown by the UI.
package scans

import (
	"context"
	"time"

	"github.com/kuapa/kuapa/backend/internal/detection"
	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/store"
	"github.com/kuapa/kuapa/backend/internal/uuid"
)

const (
	// StoreName is the persisted envelope key.
	StoreName = "kuapa-scans"
	// MaxHistory is the default history bound.
	MaxHistory = 100
)

// State is the record store state. Only History is persisted.
type State struct {
	Current    *models.ScanRecord
	History    []models.ScanRecord
	IsScanning bool
	Error      string
}

type persisted struct {
	History []models.ScanRecord `json:"history"`
}

// Capture describes an image ready for detection.
type Capture struct {
	ID           string
	UserID       string
	ImageURL     string
	ThumbnailURL string
	CropType     models.CropType
	Location     *models.GeoPoint
	Notes        string
}

// Options configures a Store.
type Options struct {
	MaxHistory int
	Detector   detection.Detector
	Reporter   func(name string, err error)
	Now        func() time.Time
}

// Store holds the scan history.
type Store struct {
	st         *store.Store[State, persisted]
	detector   detection.Detector
	maxHistory int
	now        func() time.Time
}

// New creates the record store and starts its rehydration.
func New(adapter kv.Adapter, opts Options) *Store {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = MaxHistory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		detector:   opts.Detector,
		maxHistory: opts.MaxHistory,
		now:        opts.Now,
	}
	s.st = store.New(adapter, State{}, store.Options[State, persisted]{
		Name:     StoreName,
		Reporter: opts.Reporter,
		Partialize: func(st State) persisted {
			return persisted{History: st.History}
		},
		Merge: func(current State, p persisted) State {
			current.History = truncate(p.History, s.maxHistory)
			return current
		},
	})
	return s
}

func truncate(history []models.ScanRecord, n int) []models.ScanRecord {
	if len(history) > n {
		return history[:n:n]
	}
	return history
}

// State returns the full current state.
func (s *Store) State() State { return s.st.GetState() }

// History returns the records, most recent first.
func (s *Store) History() []models.ScanRecord { return s.st.GetState().History }

// Current returns the record produced by the latest StartScan, if any.
func (s *Store) Current() *models.ScanRecord { return s.st.GetState().Current }

// Subscribe registers fn for every state transition.
func (s *Store) Subscribe(fn store.Listener[State]) func() { return s.st.Subscribe(fn) }

// HasHydrated reports whether the persisted history has been loaded.
func (s *Store) HasHydrated() bool { return s.st.HasHydrated() }

// WaitHydrated blocks until the persisted history has been loaded.
func (s *Store) WaitHydrated(ctx context.Context) error { return s.st.WaitHydrated(ctx) }

// Flush waits until the latest history is durable.
func (s *Store) Flush(ctx context.Context) error { return s.st.Flush(ctx) }

// Persist rewrites the history without changing it.
func (s *Store) Persist() { s.st.Persist() }

// Close flushes and stops the store.
func (s *Store) Close(ctx context.Context) error { return s.st.Close(ctx) }

// Append inserts record at the head of the history, dropping the oldest records
// beyond the history bound.
func (s *Store) Append(record models.ScanRecord) {
	s.st.SetState(func(st State) State {
		n := len(st.History) + 1
		if n > s.maxHistory {
			n = s.maxHistory
		}
		history := make([]models.ScanRecord, 0, n)
		history = append(history, record)
		history = append(history, st.History[:n-1]...)
		st.History = history
		return st
	})
}

// Remove deletes the record with id and clears Current when it is that record.
// Unknown ids are ignored. Before rehydration the removal is replayed against the
// loaded history.
func (s *Store) Remove(id string) {
	if s.st.HasHydrated() {
		if _, ok := s.FindByID(id); !ok {
			return
		}
	}
	s.st.SetState(func(st State) State {
		history := make([]models.ScanRecord, 0, len(st.History))
		for _, r := range st.History {
			if r.ID != id {
				history = append(history, r)
			}
		}
		if len(history) == len(st.History) {
			return st
		}
		st.History = history
		if st.Current != nil && st.Current.ID == id {
			st.Current = nil
		}
		return st
	})
}

// Clear empties the history and Current.
func (s *Store) Clear() {
	s.st.SetState(func(st State) State {
		st.History = []models.ScanRecord{}
		st.Current = nil
		return st
	})
}

// FindByID returns the record with id.
func (s *Store) FindByID(id string) (models.ScanRecord, bool) {
	for _, r := range s.st.GetState().History {
		if r.ID == id {
			return r, true
		}
	}
	return models.ScanRecord{}, false
}

// ByCrop returns the records for crop, most recent first.
func (s *Store) ByCrop(crop models.CropType) []models.ScanRecord {
	var out []models.ScanRecord
	for _, r := range s.st.GetState().History {
		if r.CropType == crop {
			out = append(out, r)
		}
	}
	return out
}

// SetError records a user-visible error message.
func (s *Store) SetError(msg string) {
	s.st.SetState(func(st State) State {
		st.Error = msg
		return st
	})
}

// ClearError clears the error message.
func (s *Store) ClearError() { s.SetError("") }

// NewRecord builds the immutable record for a capture and its detection result.
func NewRecord(c Capture, r detection.Result, at time.Time) models.ScanRecord {
	id := c.ID
	if id == "" {
		id = uuid.New()
	}
	thumb := c.ThumbnailURL
	if thumb == "" {
		thumb = c.ImageURL
	}
	return models.ScanRecord{
		ID:                id,
		UserID:            c.UserID,
		ImageURL:          c.ImageURL,
		ThumbnailURL:      thumb,
		CropType:          c.CropType,
		DetectedCondition: r.Condition,
		Confidence:        r.Confidence,
		IsHealthy:         r.IsHealthy,
		Recommendations:   r.Recommendations,
		CreatedAt:         models.Timestamp(at),
		Location:          c.Location,
		Notes:             c.Notes,
	}
}

// Detect runs detection for c and returns the resulting record without touching the
// store.
func (s *Store) Detect(ctx context.Context, c Capture) (models.ScanRecord, error) {
	if s.detector == nil {
		return models.ScanRecord{}, apperrors.New(apperrors.ErrDetectionFailed, "no detector configured")
	}
	result, err := s.detector.Detect(ctx, c.ImageURL, c.CropType)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrDetectionFailed) && !apperrors.Is(err, apperrors.ErrDetectionInvalid) {
			err = apperrors.Wrap(apperrors.ErrDetectionFailed, "detection failed", err)
		}
		return models.ScanRecord{}, err
	}
	if err := detection.Validate(result); err != nil {
		return models.ScanRecord{}, err
	}
	return NewRecord(c, result, s.now()), nil
}

// ForgetDetection releases whatever the detector kept for c. Call it once the
// record for c is durable and no retry can ask for the same result again.
func (s *Store) ForgetDetection(ctx context.Context, c Capture) {
	if f, ok := s.detector.(detection.Forgetter); ok {
		f.Forget(ctx, c.ImageURL, c.CropType)
	}
}

// StartScan runs detection for c with the scanning flags visible to subscribers. On
// success the record becomes Current and is appended to the history.
func (s *Store) StartScan(ctx context.Context, c Capture) (models.ScanRecord, error) {
	s.st.SetState(func(st State) State {
		st.IsScanning = true
		st.Error = ""
		st.Current = nil
		return st
	})

	record, err := s.Detect(ctx, c)
	if err != nil {
		s.st.SetState(func(st State) State {
			st.IsScanning = false
			st.Error = err.Error()
			return st
		})
		logging.Warn("scan failed", map[string]interface{}{
			"crop":  string(c.CropType),
			"error": err.Error(),
		})
		return models.ScanRecord{}, err
	}

	s.st.SetState(func(st State) State {
		st.Current = &record
		st.IsScanning = false
		return st
	})
	s.Append(record)
	return record, nil
}
