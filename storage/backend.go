package storage

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps backend transport or I/O failures.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("storage value corrupt")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage closed")
)

// Backend is a string key/value store. Implementations must be safe for
// concurrent use, and a Set must be visible to every later Get on the same key.
type Backend interface {
	// Get returns ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
