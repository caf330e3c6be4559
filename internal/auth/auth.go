// Package auth holds the signed-in user profile, persisted under "kuapa-auth".
// Credentials are never stored or checked here.
package auth

import (
	"context"
	"time"

	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/store"
)

// StoreName is the persisted envelope key.
const StoreName = "kuapa-auth"

// State is the auth state. User and IsAuthenticated are persisted.
type State struct {
	User            *models.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

type persisted struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
}

// Store holds the auth state.
type Store struct {
	st  *store.Store[State, persisted]
	now func() time.Time
}

// New creates the auth store and starts its rehydration.
func New(adapter kv.Adapter, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now: now,
		st: store.New(adapter, State{}, store.Options[State, persisted]{
			Name: StoreName,
			Partialize: func(s State) persisted {
				return persisted{User: s.User, IsAuthenticated: s.IsAuthenticated}
			},
			Merge: func(current State, p persisted) State {
				current.User = p.User
				current.IsAuthenticated = p.IsAuthenticated && p.User != nil
				return current
			},
		}),
	}
}

// SetUser signs user in.
func (s *Store) SetUser(user models.User) {
	s.st.SetState(func(st State) State {
		st.User = &user
		st.IsAuthenticated = true
		st.IsLoading = false
		st.Error = ""
		return st
	})
}

// UpdateUser applies patch to the signed-in user and bumps UpdatedAt. It is a no-op
// when nobody is signed in.
func (s *Store) UpdateUser(patch func(*models.User)) {
	ts := models.Timestamp(s.now())
	s.st.SetState(func(st State) State {
		if st.User == nil {
			return st
		}
		u := *st.User
		u.CropTypes = append([]models.CropType(nil), st.User.CropTypes...)
		patch(&u)
		u.UpdatedAt = ts
		st.User = &u
		return st
	})
}

// Logout clears the user.
func (s *Store) Logout() {
	s.st.SetState(func(st State) State {
		st.User = nil
		st.IsAuthenticated = false
		st.Error = ""
		return st
	})
}

// CheckAuth derives IsAuthenticated from the presence of a user.
func (s *Store) CheckAuth() bool {
	authenticated := false
	s.st.SetState(func(st State) State {
		st.IsAuthenticated = st.User != nil
		authenticated = st.IsAuthenticated
		return st
	})
	return authenticated
}

// SetLoading toggles the transient loading flag.
func (s *Store) SetLoading(loading bool) {
	s.st.SetState(func(st State) State {
		st.IsLoading = loading
		return st
	})
}

// SetError records a user-visible error.
func (s *Store) SetError(msg string) {
	s.st.SetState(func(st State) State {
		st.Error = msg
		st.IsLoading = false
		return st
	})
}

// ClearError clears the error.
func (s *Store) ClearError() { s.SetError("") }

// User returns the signed-in user, if any.
func (s *Store) User() *models.User { return s.st.GetState().User }

// State returns the current state.
func (s *Store) State() State { return s.st.GetState() }

// Subscribe registers fn for every state transition.
func (s *Store) Subscribe(fn store.Listener[State]) func() { return s.st.Subscribe(fn) }

// WaitHydrated blocks until the persisted state has been loaded.
func (s *Store) WaitHydrated(ctx context.Context) error { return s.st.WaitHydrated(ctx) }

// Flush waits until the latest state is durable.
func (s *Store) Flush(ctx context.Context) error { return s.st.Flush(ctx) }

// Close flushes and stops the store.
func (s *Store) Close(ctx context.Context) error { return s.st.Close(ctx) }
