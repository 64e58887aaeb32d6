// Package repository holds the storage-agnostic contracts that the cache
// and distributed-lock adapters implement, separating the interfaces
// from their concrete Postgres/Redis/filesystem backends.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when key has no cached value (or
// its TTL has elapsed).
var ErrCacheMiss = errors.New("repository: cache miss")

// Cache is a byte-value TTL cache, used for range-read results keyed by
// rep and offset.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ErrLockNotAcquired is returned by DistributedLock.Lock when the key is
// already held by another owner.
var ErrLockNotAcquired = errors.New("repository: lock not acquired")

// ErrLockNotOwned is returned by Unlock/Extend when the caller's token
// does not match the current holder of the lock.
var ErrLockNotOwned = errors.New("repository: lock not owned")

// DistributedLock is a token-based mutual-exclusion primitive: Lock
// returns an opaque token that must be presented to Unlock/Extend, so a
// caller can never release or extend a lock it does not hold.
type DistributedLock interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}
