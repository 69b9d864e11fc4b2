// Package store defines the key/value abstraction the authentication engine
// keeps its OTP, rate-limit and session state in, plus the Redis and
// in-memory backends.
//
// Every per-email gating decision in the engine is a read followed by
// [Store.CompareAndSwap], so a backend only has to provide an atomic
// compare-and-set per key to make the whole flow race-free.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or has expired.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable wraps backend failures (network, script errors).
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Store is a byte-oriented key/value store with per-key TTL and atomic
// compare-and-swap.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the current value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set unconditionally writes value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// CompareAndSwap replaces the value of key with next only if the current
	// value equals old. A nil old means "key must be absent"; a nil next
	// deletes the key. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error)
}

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
