package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the sync core relies on.
// This abstraction allows swapping between memory cache (development/tests)
// and Redis cache (production) without changing the remote session logic.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// CompareAndSwap replaces the value at key with next only if it currently equals prev.
	// A nil prev means "only if absent". Reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error)
}

// Common cache errors
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
