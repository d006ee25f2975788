package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations used by the judge.
// Implementations must treat a missing key as an empty string with a nil error.
type Cache interface {
	BasicOps
	LockOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error
}

// LockOps defines token-owned distributed lock operations
type LockOps interface {
	// TryLock attempts to acquire the lock at key on behalf of owner
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Unlock releases the lock only while owner still holds it
	// Returns false when the lock expired or belongs to someone else
	Unlock(ctx context.Context, key, owner string) (bool, error)

	// ExtendLock refreshes the TTL while owner still holds the lock
	ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}
