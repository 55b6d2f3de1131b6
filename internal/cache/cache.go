// Package cache defines an abstract caching interface for hot-path reads.
// Implementations may use in-memory maps (default), Redis, Memcached, or any
// other key-value store. The interface supports typed serialization via
// byte slices, leaving encoding to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// Cache abstracts a key-value cache with TTL support.
// All operations are safe for concurrent use.
type Cache interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire (or uses the implementation's default expiration).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache. It is not an error to delete
	// a key that does not exist.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifies connectivity to the underlying cache backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the cache implementation.
	Close() error
}

// GetJSON reads key and unmarshals it into a T, the typed read-through
// shape used by callers that cache structured records (e.g. the
// FunctionSpec registry) rather than raw bytes. A miss or a decode
// failure reports ok == false rather than an error, since both mean
// the caller should fall back to its source of truth.
func GetJSON[T any](ctx context.Context, c Cache, key string) (value T, ok bool) {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return value, false
	}
	if json.Unmarshal(raw, &value) != nil {
		return value, false
	}
	return value, true
}

// SetJSON marshals v and stores it under key with the given ttl.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
