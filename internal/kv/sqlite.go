package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuapa/kuapa/backend/internal/db"
)

// Store is the SQLite-backed Adapter. The app_state table is provisioned on first use.
type Store struct {
	db       *db.DB
	owned    bool
	reporter ErrorReporter

	initMu sync.Mutex
	ready  bool
}

// Option configures a Store.
type Option func(*Store)

// WithReporter replaces the default LogReporter.
func WithReporter(r ErrorReporter) Option {
	return func(s *Store) {
		if r != nil {
			s.reporter = r
		}
	}
}

// New wraps an open database. The caller keeps ownership of database.
func New(database *db.DB, opts ...Option) *Store {
	s := &Store{
		db:       database,
		reporter: LogReporter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database in dataDir and returns a Store that closes it on Close.
func Open(dataDir string, opts ...Option) (*Store, error) {
	database, err := db.Open(dataDir)
	if err != nil {
		return nil, err
	}
	s := New(database, opts...)
	s.owned = true
	return s, nil
}

// Close closes the underlying database when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// provision runs the schema migrations once. Concurrent first callers block on the
// same attempt; a failed attempt is retried by the next caller.
func (s *Store) provision() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready {
		return nil
	}
	if err := s.db.Migrate(); err != nil {
		return fmt.Errorf("provision app_state: %w", err)
	}
	s.ready = true
	return nil
}

// Get implements Adapter.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	if err := s.provision(); err != nil {
		s.reporter("get", key, err)
		return "", false
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		s.reporter("get", key, err)
		return "", false
	}
	return value, true
}

// Set implements Adapter.
func (s *Store) Set(ctx context.Context, key, value string) bool {
	if err := s.provision(); err != nil {
		s.reporter("set", key, err)
		return false
	}

	query := `INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		s.reporter("set", key, err)
		return false
	}
	return true
}

// Delete implements Adapter.
func (s *Store) Delete(ctx context.Context, key string) bool {
	if err := s.provision(); err != nil {
		s.reporter("delete", key, err)
		return false
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM app_state WHERE key = ?", key); err != nil {
		s.reporter("delete", key, err)
		return false
	}
	return true
}

// Keys implements Lister, returning keys with the given prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	if err := s.provision(); err != nil {
		s.reporter("keys", prefix, err)
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM app_state WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		s.reporter("keys", prefix, err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.reporter("keys", prefix, err)
			return nil
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		s.reporter("keys", prefix, err)
		return nil
	}
	return keys
}
