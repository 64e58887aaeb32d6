// Package rep contains the in-memory representation record: the
// fulltext/delta-chain model, independent of how it is persisted
// (delegated to a Store implementation). Modeled on a content-addressed
// object-storage domain.Blob, generalized into a
// mutable-under-transaction representation.
package rep

import "fmt"

// Kind distinguishes how a representation's content is stored.
type Kind string

const (
	// KindFulltext stores content directly as one backing string.
	KindFulltext Kind = "fulltext"
	// KindDelta stores content as an ordered chain of chunks, each a
	// binary diff against another representation.
	KindDelta Kind = "delta"
)

// MD5Size is the width of the content checksum.
const MD5Size = 16

// Chunk is one link of a delta representation's chain.
type Chunk struct {
	// Offset is the byte offset into the reconstructed fulltext at which
	// this chunk's target view begins.
	Offset int64

	// Size is the number of fulltext bytes this chunk represents.
	Size int64

	// Version is the svndiff wire-format version byte; all chunks in one
	// rep must share the same version.
	Version byte

	// StringKey is the backing-store key for this chunk's serialized
	// window bytes (post-header).
	StringKey string

	// RepKey is the source representation this chunk deltas against.
	RepKey string

	// Checksum is the MD5 of the source representation's reconstructed
	// fulltext at the time this chunk was written (informational/audit).
	Checksum [MD5Size]byte
}

// Rep is the in-memory shape of a stored representation. Equality for "is
// this the rep I was reading?" is by Key, not structural identity — the
// range reader refetches by key on every chunk.
type Rep struct {
	Key  string
	Kind Kind

	// TxnID is the owning transaction ID when the rep is mutable. Empty
	// means immutable.
	TxnID string

	// Checksum is the MD5 of the full reconstructed content. All-zero is
	// the "not yet sealed" sentinel for a fresh mutable rep.
	Checksum [MD5Size]byte

	// StringKey is populated when Kind == KindFulltext.
	StringKey string

	// Chunks is populated, non-empty, and offset-ordered when
	// Kind == KindDelta.
	Chunks []Chunk
}

// NewMutableFulltext returns a fresh, empty, mutable fulltext rep owned by
// txnID. Its checksum is the all-zero sentinel until the write stream
// seals it.
func NewMutableFulltext(key, stringKey, txnID string) *Rep {
	return &Rep{
		Key:       key,
		Kind:      KindFulltext,
		TxnID:     txnID,
		StringKey: stringKey,
	}
}

// IsMutable reports whether r is mutable under txnID: owned by that
// transaction, so nobody else may mutate it.
func (r *Rep) IsMutable(txnID string) bool {
	return txnID != "" && r.TxnID == txnID
}

// ChecksumSealed reports whether the checksum has been written (not the
// all-zero "not yet computed" sentinel).
func (r *Rep) ChecksumSealed() bool {
	return r.Checksum != [MD5Size]byte{}
}

// Validate checks the structural invariants: a mutable rep must be
// fulltext; a delta rep's chunks must be non-empty, offset-ordered,
// offset-contiguous starting at 0, each with positive size, sharing
// one version, and never deltaing against itself.
func (r *Rep) Validate() error {
	if r.TxnID != "" && r.Kind != KindFulltext {
		return fmt.Errorf("rep %s: mutable rep must be fulltext, got %s", r.Key, r.Kind)
	}

	switch r.Kind {
	case KindFulltext:
		return nil
	case KindDelta:
		if len(r.Chunks) == 0 {
			return fmt.Errorf("rep %s: delta rep has no chunks", r.Key)
		}
		version := r.Chunks[0].Version
		var want int64
		for i, c := range r.Chunks {
			if c.Size <= 0 {
				return fmt.Errorf("rep %s: chunk %d has non-positive size %d", r.Key, i, c.Size)
			}
			if c.Offset != want {
				return fmt.Errorf("rep %s: chunk %d offset %d != expected %d", r.Key, i, c.Offset, want)
			}
			if c.Version != version {
				return fmt.Errorf("rep %s: chunk %d version %d != chain version %d", r.Key, i, c.Version, version)
			}
			if c.RepKey == r.Key {
				return fmt.Errorf("rep %s: chunk %d deltas against itself", r.Key, i)
			}
			want += c.Size
		}
		return nil
	default:
		return fmt.Errorf("rep %s: unknown kind %q", r.Key, r.Kind)
	}
}

// DeltaSize returns the logical content size of a delta rep: the end
// offset of its last chunk.
func (r *Rep) DeltaSize() int64 {
	if len(r.Chunks) == 0 {
		return 0
	}
	last := r.Chunks[len(r.Chunks)-1]
	return last.Offset + last.Size
}

// ChunkAt does a linear scan for the first chunk whose [offset, offset+
// size) contains pos. Binary search is a valid substitute since chunks
// are offset-ordered, but chunk counts are small in practice so
// linear keeps this simple.
func (r *Rep) ChunkAt(pos int64) (int, bool) {
	for i, c := range r.Chunks {
		if pos >= c.Offset && pos < c.Offset+c.Size {
			return i, true
		}
	}
	return 0, false
}
