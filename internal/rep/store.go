package rep

import (
	"context"
	"errors"

	"github.com/prn-tf/repstore/internal/trail"
)

// ErrNotFound is returned when a rep key has no record.
var ErrNotFound = errors.New("rep: not found")

// Store is the persisted-record contract for the reps table:
// read/write/allocate/delete, all scoped to a trail.
type Store interface {
	// Read loads the rep record for key, or ErrNotFound.
	Read(ctx context.Context, tr *trail.Trail, key string) (*Rep, error)

	// Write atomically replaces the record at r.Key (must already exist).
	Write(ctx context.Context, tr *trail.Trail, r *Rep) error

	// WriteNew allocates a fresh key and persists r under it, returning
	// the allocated key. r.Key is ignored on input and set on success.
	WriteNew(ctx context.Context, tr *trail.Trail, r *Rep) (string, error)

	// Delete removes the rep record at key.
	Delete(ctx context.Context, tr *trail.Trail, key string) error
}
