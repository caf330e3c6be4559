// Package notifications is the in-app notification store persisted under
// "kuapa-notifications".
package notifications

import (
	"context"
	"time"

	"github.com/kuapa/kuapa/backend/internal/kv"
	"github.com/kuapa/kuapa/backend/internal/models"
	"github.com/kuapa/kuapa/backend/internal/store"
	"github.com/kuapa/kuapa/backend/internal/uuid"
)

// StoreName is the persisted envelope key.
const StoreName = "kuapa-notifications"

// State is the whole persisted notification state, newest first.
type State struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// Store holds notifications.
type Store struct {
	st  *store.Store[State, State]
	now func() time.Time
}

// Options configures a Store.
type Options struct {
	Now      func() time.Time
	Reporter func(name string, err error)
}

// Welcome returns the notifications a fresh install starts with.
func Welcome(now time.Time) []models.Notification {
	return []models.Notification{
		{
			ID:        uuid.New(),
			Type:      models.NotificationInfo,
			Title:     "Welcome to Kuapa",
			Message:   "Thanks for joining us! Start scanning your crops to detect diseases.",
			CreatedAt: models.Timestamp(now),
		},
		{
			ID:        uuid.New(),
			Type:      models.NotificationWarning,
			Title:     "Complete your profile",
			Message:   "Add your farm details to get personalized recommendations.",
			CreatedAt: models.Timestamp(now.Add(-24 * time.Hour)),
		},
	}
}

// New creates the notification store. Until persisted state is found it holds the
// welcome notifications.
func New(adapter kv.Adapter, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	initial := State{Notifications: Welcome(opts.Now())}
	initial.UnreadCount = countUnread(initial.Notifications)

	return &Store{
		now: opts.Now,
		st: store.New(adapter, initial, store.Options[State, State]{
			Name:       StoreName,
			Reporter:   opts.Reporter,
			Partialize: func(s State) State { return s },
			Merge: func(_ State, p State) State {
				p.UnreadCount = countUnread(p.Notifications)
				return p
			},
		}),
	}
}

func countUnread(ns []models.Notification) int {
	n := 0
	for _, item := range ns {
		if !item.Read {
			n++
		}
	}
	return n
}

// Add prepends a new unread notification and returns it.
func (s *Store) Add(kind models.NotificationType, title, message string) models.Notification {
	n := models.Notification{
		ID:        uuid.New(),
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: models.Timestamp(s.now()),
	}
	s.st.SetState(func(st State) State {
		ns := make([]models.Notification, 0, len(st.Notifications)+1)
		ns = append(ns, n)
		st.Notifications = append(ns, st.Notifications...)
		st.UnreadCount++
		return st
	})
	return n
}

// MarkAsRead marks one notification read. Unknown or already read ids are ignored.
func (s *Store) MarkAsRead(id string) {
	s.st.SetState(func(st State) State {
		idx := -1
		for i, n := range st.Notifications {
			if n.ID == id && !n.Read {
				idx = i
				break
			}
		}
		if idx < 0 {
			return st
		}
		ns := make([]models.Notification, len(st.Notifications))
		copy(ns, st.Notifications)
		ns[idx].Read = true
		st.Notifications = ns
		st.UnreadCount = max(0, st.UnreadCount-1)
		return st
	})
}

// MarkAllAsRead marks every notification read.
func (s *Store) MarkAllAsRead() {
	s.st.SetState(func(st State) State {
		ns := make([]models.Notification, len(st.Notifications))
		for i, n := range st.Notifications {
			n.Read = true
			ns[i] = n
		}
		st.Notifications = ns
		st.UnreadCount = 0
		return st
	})
}

// Remove deletes one notification.
func (s *Store) Remove(id string) {
	s.st.SetState(func(st State) State {
		ns := make([]models.Notification, 0, len(st.Notifications))
		wasUnread := false
		for _, n := range st.Notifications {
			if n.ID == id {
				wasUnread = !n.Read
				continue
			}
			ns = append(ns, n)
		}
		st.Notifications = ns
		if wasUnread {
			st.UnreadCount = max(0, st.UnreadCount-1)
		}
		return st
	})
}

// Clear removes every notification.
func (s *Store) Clear() {
	s.st.SetState(func(State) State {
		return State{Notifications: []models.Notification{}}
	})
}

// List returns the notifications, newest first.
func (s *Store) List() []models.Notification { return s.st.GetState().Notifications }

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int { return s.st.GetState().UnreadCount }

// State returns the current state.
func (s *Store) State() State { return s.st.GetState() }

// Subscribe registers fn for every state transition.
func (s *Store) Subscribe(fn store.Listener[State]) func() { return s.st.Subscribe(fn) }

// WaitHydrated blocks until the persisted notifications have been loaded.
func (s *Store) WaitHydrated(ctx context.Context) error { return s.st.WaitHydrated(ctx) }

// Flush waits until the latest state is durable.
func (s *Store) Flush(ctx context.Context) error { return s.st.Flush(ctx) }

// Close flushes and stops the store.
func (s *Store) Close(ctx context.Context) error { return s.st.Close(ctx) }
