// Package trail models one retryable attempt at a transactional
// representation-engine operation: a transaction handle against the
// backing store paired with a scratch allocation arena whose lifetime is
// exactly one attempt. See spec design note "Trails and pools -> scoped
// allocation + retry harness".
package trail

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tx is the minimal transaction contract a backing store must satisfy.
// Both the pgx and database/sql backends implement this directly.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Trail is one attempt of a transactional operation: a transaction handle,
// a logger tagged with the trail's ID, and a child-scope allocation arena.
//
// A Trail is not safe for concurrent use; operations within one trail are
// expected to run sequentially on a single goroutine.
type Trail struct {
	ID     string
	Tx     Tx
	Log    zerolog.Logger
	arena  *Arena
	opened time.Time
}

// New wraps a backing-store transaction into a fresh trail, with its own
// root allocation arena and a logger annotated with the trail ID.
func New(tx Tx, logger zerolog.Logger) *Trail {
	id := uuid.New().String()
	return &Trail{
		ID:     id,
		Tx:     tx,
		Log:    logger.With().Str("trail_id", id).Logger(),
		arena:  newArena(),
		opened: time.Now(),
	}
}

// Arena returns the trail's root allocation scope.
func (t *Trail) Arena() *Arena {
	return t.arena
}

// Commit commits the underlying transaction.
func (t *Trail) Commit(ctx context.Context) error {
	return t.Tx.Commit(ctx)
}

// Abort rolls back the underlying transaction and releases the arena.
func (t *Trail) Abort(ctx context.Context) error {
	t.arena.releaseAll()
	return t.Tx.Rollback(ctx)
}

// Elapsed returns how long this trail has been open.
func (t *Trail) Elapsed() time.Duration {
	return time.Since(t.opened)
}

// ErrRetryable marks an error the retry harness should replay the
// operation for (a transient condition raised by the backing store).
var ErrRetryable = errors.New("trail: transient storage conflict")

// IsRetryable reports whether err (or one of its wrapped causes) should
// trigger another attempt rather than surfacing to the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// Retry runs fn inside successive trails (each built from begin) until it
// succeeds, returns a non-retryable error, ctx is cancelled, or attempts
// are exhausted. At most one of fn's trails is committed: the one on which
// fn returned nil.
func Retry(ctx context.Context, maxAttempts int, begin func(ctx context.Context) (*Trail, error), fn func(ctx context.Context, tr *Trail) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tr, err := begin(ctx)
		if err != nil {
			return err
		}

		err = fn(ctx, tr)
		if err == nil {
			return tr.Commit(ctx)
		}

		_ = tr.Abort(ctx)
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}
	return lastErr
}
