// Package kv is the embedded key-value adapter every persistent store writes through.
//
// Keys and values are opaque strings. Each call is individually durable: it either
// fully commits or has no visible effect. Storage failures never reach the caller;
// Get reports the key as absent and Set/Delete become no-ops, with the failure handed
// to the adapter's ErrorReporter.
package kv

import (
	"context"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/logging"
)

// Adapter is the minimal get/set/delete contract.
type Adapter interface {
	// Get returns the stored value and true, or "" and false when the key is absent
	// or the store could not be read.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key and reports whether the write committed.
	Set(ctx context.Context, key, value string) bool
	// Delete removes key and reports whether the delete committed.
	Delete(ctx context.Context, key string) bool
}

// Lister is implemented by adapters that can enumerate keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) []string
}

// ErrorReporter receives failures the adapter swallowed.
type ErrorReporter func(op, key string, err error)

// LogReporter reports swallowed failures to the structured logger.
func LogReporter(op, key string, err error) {
	logging.Error("embedded store operation failed",
		apperrors.Wrap(apperrors.ErrStorage, op, err),
		map[string]interface{}{
			"op":  op,
			"key": key,
		})
}

// ListAdapter is an Adapter that can also enumerate keys.
type ListAdapter interface {
	Adapter
	Lister
}
