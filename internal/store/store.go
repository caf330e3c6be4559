// Package store provides an observable in-memory state container whose persisted
// projection is written through a kv.Adapter and rehydrated once at startup.
//
// Mutations are applied in SetState call order and subscribers are notified in the
// same order. Durability writes run on a single writer goroutine per store and are
// coalesced, so only the latest projection is ever written. The in-memory state is
// authoritative for the session whatever the durability outcome.
//
// State values are treated as immutable: patches must return new slices and maps
// rather than editing the ones they were handed, because the writer serializes
// projections after SetState returns.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/logging"
)

// Listener observes a state transition. It runs on the goroutine that applied the
// mutation and must not block.
type Listener[S any] func(state, prev S)

// Options configures a Store.
type Options[S, P any] struct {
	// Name is the key of the persisted envelope in the adapter.
	Name string
	// Version tags the persisted projection schema. Defaults to 1.
	Version int
	// Partialize selects the persisted projection. It must be pure.
	Partialize func(S) P
	// Merge folds a rehydrated projection into the default state.
	Merge func(current S, persisted P) S
	// Migrate upgrades a projection written with an older Version. Optional.
	Migrate func(raw json.RawMessage, fromVersion int) (P, error)
	// Reporter receives non-fatal decode and write failures. Defaults to the logger.
	Reporter func(name string, err error)
}

type listenerEntry[S any] struct {
	id int
	fn Listener[S]
}

type change[S any] struct {
	state S
	prev  S
}

// Store is a persistent reactive state container.
type Store[S, P any] struct {
	adapter kv.Adapter
	opts    Options[S, P]
	initial S

	// mu guards state, hydration bookkeeping and the notify queue ordering.
	mu           sync.Mutex
	state        S
	hydrated     bool
	preHydration []func(S) S
	closed       bool
	hydratedCh   chan struct{}

	// nmu guards listeners and the notify queue.
	nmu       sync.Mutex
	listeners []listenerEntry[S]
	nextID    int
	queue     []change[S]
	draining  bool

	// wmu guards the writer state.
	wmu        sync.Mutex
	wcond      *sync.Cond
	pending    P
	hasPending bool
	writing    bool
	lastFailed bool
	wstopped   bool
	wake       chan struct{}
	done       chan struct{}
	stopped    chan struct{}
}

// New creates a Store holding initial and starts its rehydration read.
func New[S, P any](adapter kv.Adapter, initial S, opts Options[S, P]) *Store[S, P] {
	if opts.Name == "" {
		panic("store: Options.Name is required")
	}
	if opts.Partialize == nil || opts.Merge == nil {
		panic("store: Options.Partialize and Options.Merge are required")
	}
	if opts.Version == 0 {
		opts.Version = 1
	}
	if opts.Reporter == nil {
		opts.Reporter = logReporter
	}

	s := &Store[S, P]{
		adapter:    adapter,
		opts:       opts,
		initial:    initial,
		state:      initial,
		hydratedCh: make(chan struct{}),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	s.wcond = sync.NewCond(&s.wmu)

	go s.writeLoop()
	go s.hydrate()
	return s
}

// NewWhole creates a Store that persists its entire state.
func NewWhole[S any](adapter kv.Adapter, initial S, name string, version int) *Store[S, S] {
	return New(adapter, initial, Options[S, S]{
		Name:       name,
		Version:    version,
		Partialize: func(s S) S { return s },
		Merge:      func(_ S, persisted S) S { return persisted },
	})
}

func logReporter(name string, err error) {
	logging.Error("persistent store failure", err, map[string]interface{}{"store": name})
}

// Name returns the persisted envelope key.
func (s *Store[S, P]) Name() string {
	return s.opts.Name
}

// GetState returns the current state.
func (s *Store[S, P]) GetState() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasHydrated reports whether the rehydration read has completed.
func (s *Store[S, P]) HasHydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// WaitHydrated blocks until rehydration completes or ctx is done.
func (s *Store[S, P]) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydratedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetState applies patch to the current state, notifies subscribers and schedules a
// write of the persisted projection. Patches applied before rehydration completes are
// replayed on top of the rehydrated state.
func (s *Store[S, P]) SetState(patch func(S) S) {
	s.mu.Lock()
	prev := s.state
	next := patch(prev)
	s.state = next
	if !s.hydrated {
		s.preHydration = append(s.preHydration, patch)
	}
	if s.hydrated && !s.closed {
		s.schedule(s.opts.Partialize(next))
	}
	s.enqueue(change[S]{state: next, prev: prev})
	s.mu.Unlock()

	s.drain()
}

// Persist schedules a rewrite of the current projection, for recovering after a
// failed write without mutating the state.
func (s *Store[S, P]) Persist() {
	s.mu.Lock()
	if s.hydrated && !s.closed {
		s.schedule(s.opts.Partialize(s.state))
	}
	s.mu.Unlock()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[S, P]) Subscribe(fn Listener[S]) func() {
	s.nmu.Lock()
	defer s.nmu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry[S]{id: id, fn: fn})

	return func() {
		s.nmu.Lock()
		defer s.nmu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// enqueue must be called with mu held so queue order matches mutation order.
func (s *Store[S, P]) enqueue(c change[S]) {
	s.nmu.Lock()
	s.queue = append(s.queue, c)
	s.nmu.Unlock()
}

// drain delivers queued changes. Only one goroutine drains at a time; a listener that
// mutates the store has its change delivered after the current one.
func (s *Store[S, P]) drain() {
	s.nmu.Lock()
	if s.draining {
		s.nmu.Unlock()
		return
	}
	s.draining = true
	s.nmu.Unlock()

	for {
		s.nmu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.nmu.Unlock()
			return
		}
		c := s.queue[0]
		s.queue = s.queue[1:]
		listeners := make([]listenerEntry[S], len(s.listeners))
		copy(listeners, s.listeners)
		s.nmu.Unlock()

		for _, entry := range listeners {
			entry.fn(c.state, c.prev)
		}
	}
}

type envelope struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

func (s *Store[S, P]) hydrate() {
	var persisted *P
	if raw, ok := s.adapter.Get(context.Background(), s.opts.Name); ok {
		p, err := s.decode(raw)
		if err != nil {
			s.opts.Reporter(s.opts.Name, err)
		} else {
			persisted = &p
		}
	}

	s.mu.Lock()
	prev := s.state
	next := s.initial
	if persisted != nil {
		next = s.opts.Merge(next, *persisted)
	}
	replayed := len(s.preHydration) > 0
	for _, patch := range s.preHydration {
		next = patch(next)
	}
	s.preHydration = nil
	s.state = next
	s.hydrated = true
	if replayed && !s.closed {
		s.schedule(s.opts.Partialize(next))
	}
	s.enqueue(change[S]{state: next, prev: prev})
	close(s.hydratedCh)
	s.mu.Unlock()

	s.drain()
}

func (s *Store[S, P]) decode(raw string) (P, error) {
	var zero P
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return zero, apperrors.Wrap(apperrors.ErrCorruptedState, "unreadable envelope", err)
	}

	switch {
	case env.Version == s.opts.Version:
		var p P
		if err := json.Unmarshal(env.State, &p); err != nil {
			return zero, apperrors.Wrap(apperrors.ErrCorruptedState, "unreadable state", err)
		}
		return p, nil
	case env.Version < s.opts.Version && s.opts.Migrate != nil:
		p, err := s.opts.Migrate(env.State, env.Version)
		if err != nil {
			return zero, apperrors.Wrap(apperrors.ErrCorruptedState,
				fmt.Sprintf("migration from version %d failed", env.Version), err)
		}
		return p, nil
	default:
		return zero, apperrors.New(apperrors.ErrCorruptedState,
			fmt.Sprintf("unsupported state version %d (want %d)", env.Version, s.opts.Version))
	}
}

func (s *Store[S, P]) encode(p P) (string, error) {
	state, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(envelope{Version: s.opts.Version, State: state})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// schedule replaces any unwritten projection with p and wakes the writer. Callers hold
// mu so the newest projection always wins.
func (s *Store[S, P]) schedule(p P) {
	s.wmu.Lock()
	if s.wstopped {
		s.wmu.Unlock()
		return
	}
	s.pending = p
	s.hasPending = true
	s.wmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store[S, P]) writeLoop() {
	defer close(s.stopped)
	defer func() {
		s.wmu.Lock()
		s.wstopped = true
		s.wcond.Broadcast()
		s.wmu.Unlock()
	}()
	for {
		select {
		case <-s.wake:
			s.writePending()
		case <-s.done:
			s.writePending()
			return
		}
	}
}

func (s *Store[S, P]) writePending() {
	s.wmu.Lock()
	if !s.hasPending {
		s.wmu.Unlock()
		return
	}
	p := s.pending
	var zero P
	s.pending = zero
	s.hasPending = false
	s.writing = true
	s.wmu.Unlock()

	ok := s.write(p)

	s.wmu.Lock()
	s.writing = false
	s.lastFailed = !ok
	s.wcond.Broadcast()
	s.wmu.Unlock()
}

// write performs one durability attempt. A failure is reported and left for the next
// mutation to supersede.
func (s *Store[S, P]) write(p P) bool {
	data, err := s.encode(p)
	if err != nil {
		s.opts.Reporter(s.opts.Name, apperrors.Wrap(apperrors.ErrStorage, "encode state", err))
		return false
	}
	if !s.adapter.Set(context.Background(), s.opts.Name, data) {
		logging.Warn("state write did not commit, next mutation will rewrite it",
			map[string]interface{}{"store": s.opts.Name})
		return false
	}
	return true
}

// Flush waits for rehydration and then until no write is pending or in flight. It
// returns a STORAGE_ERROR when the most recent write did not commit.
func (s *Store[S, P]) Flush(ctx context.Context) error {
	if err := s.WaitHydrated(ctx); err != nil {
		return err
	}

	var abandoned atomic.Bool
	idle := make(chan bool, 1)
	go func() {
		s.wmu.Lock()
		for (s.hasPending || s.writing) && !s.wstopped && !abandoned.Load() {
			s.wcond.Wait()
		}
		failed := s.lastFailed
		s.wmu.Unlock()
		idle <- failed
	}()

	select {
	case failed := <-idle:
		if failed {
			return apperrors.New(apperrors.ErrStorage, fmt.Sprintf("state %q is not durable", s.opts.Name))
		}
		return nil
	case <-ctx.Done():
		// Release the waiter; it rechecks abandoned under wmu.
		abandoned.Store(true)
		s.wmu.Lock()
		s.wcond.Broadcast()
		s.wmu.Unlock()
		return ctx.Err()
	}
}

// Close flushes the pending write and stops the writer. Later mutations stay in memory.
func (s *Store[S, P]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.wmu.Lock()
	failed := s.lastFailed
	s.wmu.Unlock()
	if failed {
		return apperrors.New(apperrors.ErrStorage, fmt.Sprintf("state %q is not durable", s.opts.Name))
	}
	return nil
}
