// Package kv provides the key-value persistence used for vector storage and
// provider block markers.
//
// Two backends implement Store:
//   - RedisStore (default), backed by go-redis
//   - PostgresStore, a single-table emulation over lib/pq
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired
var ErrNotFound = errors.New("kv: key not found")

// Store is the key-value contract consumed by the retrieval store and the
// health tracker.
type Store interface {
	// Get returns the string value stored at key
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key; ttl <= 0 means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// HSetFields sets the given fields of the hash stored at key
	HSetFields(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns every field of the hash stored at key (empty when absent)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Scan iterates keys matching a glob pattern. A returned cursor of 0 ends
	// the iteration.
	Scan(ctx context.Context, cursor uint64, pattern string, pageSize int64) (uint64, []string, error)

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close() error
}
