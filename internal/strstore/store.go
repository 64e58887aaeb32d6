// Package strstore is the string-store adapter: a thin contract over
// the backing byte-string table, named strstore (not "strings") to
// keep it distinct from the standard library package at every call
// site.
package strstore

import (
	"context"
	"errors"

	"github.com/prn-tf/repstore/internal/trail"
)

// ErrNotFound is returned when a string key has no backing content.
var ErrNotFound = errors.New("strstore: not found")

// Store is the byte-string backing contract. All operations are scoped to
// a trail (one attempt of a transactional operation).
type Store interface {
	// Append appends data to the string at key, allocating a fresh key
	// when key is empty (including allocating an empty string when data
	// is also empty), and returns the (possibly newly allocated) key.
	Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error)

	// Read reads up to maxLen bytes starting at offset. A zero-length
	// result signals end-of-string, not an error.
	Read(ctx context.Context, tr *trail.Trail, key string, offset int64, maxLen int) ([]byte, error)

	// Size returns the current length of the string at key.
	Size(ctx context.Context, tr *trail.Trail, key string) (int64, error)

	// Clear truncates the string at key to empty, preserving the key.
	Clear(ctx context.Context, tr *trail.Trail, key string) error

	// Delete removes the string at key entirely.
	Delete(ctx context.Context, tr *trail.Trail, key string) error
}
