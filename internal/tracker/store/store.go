// Package store implements the Strategy Tracker's object-storage
// persistence (spec.md §4.4 "Persistence layout"): three JSON documents
// per deployment mode plus a dated daily archive, all UTF-8 JSON with
// decimals serialized as strings.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist yet — the
// Tracker treats this as "start from empty", not a fatal condition.
var ErrNotFound = errors.New("tracker store: object not found")

// Store is the minimal object-storage surface the Tracker needs. It is
// implemented by S3Store; tests use an in-memory fake.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, gzipEncoded bool) error
	Exists(ctx context.Context, key string) (bool, error)
}
