// Package telemetry records sync and capture counters in process memory.
//
// Nothing is ever transmitted. Recording is off until Enable is called; while off,
// every function is a no-op.
package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names recorded by the sync scheduler.
const (
	CaptureCompleted = "capture.completed"
	CaptureQueued    = "capture.queued"
	RetrySucceeded   = "retry.succeeded"
	RetryFailed      = "retry.failed"
	RetryDeduped     = "retry.deduped"
	ReconcileStale   = "reconcile.stale"
	DetectionTiming  = "detection"
)

var (
	enabled atomic.Bool

	mu      sync.Mutex
	counts  = make(map[string]int64)
	timings = make(map[string]*Timing)
)

// Timing aggregates recorded durations.
type Timing struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average duration.
func (t Timing) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// IsEnabled reports whether recording is on.
func IsEnabled() bool {
	return enabled.Load()
}

// Enable turns recording on.
func Enable() {
	enabled.Store(true)
}

// Disable turns recording off and discards everything recorded.
func Disable() {
	enabled.Store(false)
	Reset()
}

// RecordCount adds delta to the named counter.
func RecordCount(name string, delta int) {
	if !enabled.Load() {
		return
	}
	mu.Lock()
	counts[name] += int64(delta)
	mu.Unlock()
}

// RecordTiming adds d to the named timing.
func RecordTiming(name string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	t, ok := timings[name]
	if !ok {
		t = &Timing{}
		timings[name] = t
	}
	t.Count++
	t.Total += d
	if d > t.Max {
		t.Max = d
	}
}

// Snapshot is a copy of everything recorded.
type Snapshot struct {
	Enabled bool              `json:"enabled"`
	Counts  map[string]int64  `json:"counts"`
	Timings map[string]Timing `json:"timings"`
}

// Names returns the counter names in order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Counts))
	for name := range s.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Take returns a Snapshot of the current counters.
func Take() Snapshot {
	mu.Lock()
	defer mu.Unlock()
	s := Snapshot{
		Enabled: enabled.Load(),
		Counts:  make(map[string]int64, len(counts)),
		Timings: make(map[string]Timing, len(timings)),
	}
	for k, v := range counts {
		s.Counts[k] = v
	}
	for k, v := range timings {
		s.Timings[k] = *v
	}
	return s
}

// Reset discards everything recorded.
func Reset() {
	mu.Lock()
	counts = make(map[string]int64)
	timings = make(map[string]*Timing)
	mu.Unlock()
}
