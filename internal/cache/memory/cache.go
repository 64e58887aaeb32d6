// Package memory provides an in-process TTL cache for single-node
// deployments, standing in for rediscache where no Redis is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/repstore/internal/repository"
)

type entry struct {
	value   []byte
	expires time.Time
	hasTTL  bool
}

func (e entry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expires)
}

// Cache is a mutex-guarded map with lazy and swept expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCache starts a cache with a background sweep that evicts expired
// entries every second.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

// Stop halts the background sweep. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Get returns the value stored at key, or repository.ErrCacheMiss if
// absent or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, repository.ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value at key. A zero ttl means the entry never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := entry{value: stored}
	if ttl > 0 {
		e.hasTTL = true
		e.expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists reports whether key holds an unexpired value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

var _ repository.Cache = (*Cache)(nil)
