// Package redislock provides a cross-process Locker backed by Redis,
// adapted from a cache/redis DistributedLock. The
// token-based primitive below is exposed separately as repository.
// DistributedLock; Locker wraps it with the simpler key-only API the
// rest of the engine expects, tracking each key's token locally so a
// caller never has to thread one through.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prn-tf/repstore/internal/lock"
	"github.com/prn-tf/repstore/internal/repository"
)

const defaultLockTTL = 30 * time.Second
const prefixLock = "lock:"

// DistributedLock implements repository.DistributedLock directly against
// a go-redis client.
type DistributedLock struct {
	client *redis.Client
}

// NewDistributedLock wraps an existing go-redis client.
func NewDistributedLock(client *redis.Client) *DistributedLock {
	return &DistributedLock{client: client}
}

// Lock acquires key via SETNX, returning a token that must be presented
// to Unlock/Extend.
func (l *DistributedLock) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	lockKey := prefixLock + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", repository.ErrLockNotAcquired
	}
	return token, nil
}

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Unlock releases key, but only if token matches the current holder.
func (l *DistributedLock) Unlock(ctx context.Context, key, token string) error {
	lockKey := prefixLock + key
	result, err := l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return repository.ErrLockNotOwned
	}
	return nil
}

const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// Extend pushes out key's TTL, but only if token matches the current
// holder.
func (l *DistributedLock) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	lockKey := prefixLock + key
	result, err := l.client.Eval(ctx, extendScript, []string{lockKey}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return repository.ErrLockNotOwned
	}
	return nil
}

// IsLocked reports whether key is currently held by anyone.
func (l *DistributedLock) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, prefixLock+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return n > 0, nil
}

var _ repository.DistributedLock = (*DistributedLock)(nil)

// Locker adapts DistributedLock to the engine's key-only lock.Locker
// shape, keeping each held key's token in a local map.
type Locker struct {
	dl *DistributedLock

	mu     sync.Mutex
	tokens map[string]string
}

// NewLocker wraps client as a lock.Locker.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{dl: NewDistributedLock(client), tokens: make(map[string]string)}
}

// Acquire locks key, remembering its token for a later Release/Extend.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, err := l.dl.Lock(ctx, key, ttl)
	if err != nil {
		if err == repository.ErrLockNotAcquired {
			return false, nil
		}
		return false, err
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// AcquireWithRetry retries Acquire up to maxRetries times, sleeping
// retryDelay between attempts.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if attempt >= maxRetries {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release frees key, reporting whether this Locker actually held it.
func (l *Locker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	token, held := l.tokens[key]
	l.mu.Unlock()
	if !held {
		return false, nil
	}

	err := l.dl.Unlock(ctx, key, token)
	l.mu.Lock()
	delete(l.tokens, key)
	l.mu.Unlock()

	if err == repository.ErrLockNotOwned {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Extend pushes out key's TTL.
func (l *Locker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	token, held := l.tokens[key]
	l.mu.Unlock()
	if !held {
		return false, nil
	}

	err := l.dl.Extend(ctx, key, token, ttl)
	if err == repository.ErrLockNotOwned {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsHeld reports whether key is currently locked by anyone.
func (l *Locker) IsHeld(ctx context.Context, key string) (bool, error) {
	return l.dl.IsLocked(ctx, key)
}

var _ lock.Locker = (*Locker)(nil)
