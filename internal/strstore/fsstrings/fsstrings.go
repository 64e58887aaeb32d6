// Package fsstrings is a filesystem-backed strstore.Store, adapted from
// a filesystem blob backend: a sharded locking discipline (256
// independent locks keyed off the string key rather than a content
// hash, since strings are mutable and non-content-addressed here)
// replaces one coarse mutex, so concurrent appends/reads to unrelated
// keys don't serialize behind each other.
package fsstrings

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

const shardCount = 256

type shardedLock struct {
	locks [shardCount]sync.RWMutex
}

func (sl *shardedLock) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (sl *shardedLock) Lock(key string)    { sl.locks[sl.shardIndex(key)].Lock() }
func (sl *shardedLock) Unlock(key string)  { sl.locks[sl.shardIndex(key)].Unlock() }
func (sl *shardedLock) RLock(key string)   { sl.locks[sl.shardIndex(key)].RLock() }
func (sl *shardedLock) RUnlock(key string) { sl.locks[sl.shardIndex(key)].RUnlock() }

// Store implements strstore.Store by keeping one file per key under dataDir.
type Store struct {
	dataDir string
	shards  shardedLock
	nextKey int64
	keyMu   sync.Mutex
}

// New creates a filesystem-backed string store rooted at dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create string data directory: %w", err)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve string data directory: %w", err)
	}
	return &Store{dataDir: abs}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dataDir, key+".bin")
}

func (s *Store) allocateKey() string {
	n := atomic.AddInt64(&s.nextKey, 1)
	return "f" + strconv.FormatInt(n, 10)
}

// Append appends data to the string at key, allocating a fresh key when
// key is empty.
func (s *Store) Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error) {
	if key == "" {
		s.keyMu.Lock()
		key = s.allocateKey()
		s.keyMu.Unlock()
	}

	s.shards.Lock(key)
	defer s.shards.Unlock(key)

	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open string %s for append: %w", key, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to append to string %s: %w", key, err)
	}
	return key, nil
}

// Read reads up to maxLen bytes starting at offset.
func (s *Store) Read(ctx context.Context, tr *trail.Trail, key string, offset int64, maxLen int) ([]byte, error) {
	s.shards.RLock(key)
	defer s.shards.RUnlock(key)

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, strstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open string %s: %w", key, err)
	}
	defer f.Close()

	buf := make([]byte, maxLen)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read string %s: %w", key, err)
	}
	return buf[:n], nil
}

// Size returns the current length of the string at key.
func (s *Store) Size(ctx context.Context, tr *trail.Trail, key string) (int64, error) {
	s.shards.RLock(key)
	defer s.shards.RUnlock(key)

	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, strstore.ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat string %s: %w", key, err)
	}
	return info.Size(), nil
}

// Clear truncates the string at key to empty.
func (s *Store) Clear(ctx context.Context, tr *trail.Trail, key string) error {
	s.shards.Lock(key)
	defer s.shards.Unlock(key)

	f, err := os.OpenFile(s.path(key), os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return strstore.ErrNotFound
		}
		return fmt.Errorf("failed to clear string %s: %w", key, err)
	}
	return f.Close()
}

// Delete removes the string at key entirely.
func (s *Store) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	s.shards.Lock(key)
	defer s.shards.Unlock(key)

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return strstore.ErrNotFound
		}
		return fmt.Errorf("failed to delete string %s: %w", key, err)
	}
	return nil
}
