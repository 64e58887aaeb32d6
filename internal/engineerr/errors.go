// Package engineerr holds the sentinel error taxonomy surfaced to
// callers of the representation engine, named after the abstract error
// codes: general failure, corruption, a rep changing shape under a
// stream, a write against an immutable rep, and a diff producer that
// never yielded a checksum.
package engineerr

import "errors"

var (
	// ErrGeneral covers failures with no more specific classification,
	// including reconstructed content too large to materialize in one
	// buffer.
	ErrGeneral = errors.New("engine: general failure")

	// ErrCorrupt marks unrecoverable structural corruption: a version
	// mismatch within a chain, an unknown rep kind, a checksum mismatch,
	// or a mutable rep that is not fulltext.
	ErrCorrupt = errors.New("engine: corrupt representation")

	// ErrRepChanged is raised when a read stream over an absent rep_key
	// is read past offset zero.
	ErrRepChanged = errors.New("engine: representation changed")

	// ErrRepNotMutable is raised when a write is attempted against a rep
	// that is not mutable under the caller's transaction.
	ErrRepNotMutable = errors.New("engine: representation not mutable")

	// ErrDeltaMD5Absent is raised when the diff producer finishes without
	// ever yielding a checksum for the target fulltext.
	ErrDeltaMD5Absent = errors.New("engine: delta producer yielded no checksum")
)
