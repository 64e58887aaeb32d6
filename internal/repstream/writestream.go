package repstream

import (
	"context"
	"crypto/md5"
	"fmt"
	"hash"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

// WriteStream appends bytes into a mutable rep's backing string, sealing
// the running MD5 into the rep record on close.
type WriteStream struct {
	engine *Engine
	tr     *trail.Trail

	repKey    string
	txnID     string
	stringKey string
	sum       hash.Hash
	finalized bool
}

// OpenWrite opens a write stream over repKey, which must be mutable under
// txnID. Opening always clears the rep's backing string first: a rep is
// reopened for writing only by rewriting its content from scratch.
func (e *Engine) OpenWrite(ctx context.Context, tr *trail.Trail, repKey string, txnID string) (*WriteStream, error) {
	rp, err := e.Reps.Read(ctx, tr, repKey)
	if err != nil {
		return nil, err
	}
	if !rp.IsMutable(txnID) {
		return nil, engineerr.ErrRepNotMutable
	}
	if rp.Kind != rep.KindFulltext {
		return nil, fmt.Errorf("%w: mutable rep %s is not fulltext", engineerr.ErrCorrupt, repKey)
	}

	if err := e.Strings.Clear(ctx, tr, rp.StringKey); err != nil {
		return nil, err
	}

	return &WriteStream{
		engine:    e,
		tr:        tr,
		repKey:    repKey,
		txnID:     txnID,
		stringKey: rp.StringKey,
		sum:       md5.New(),
	}, nil
}

// Write appends buf to the stream's backing string and folds it into the
// running checksum. Partial writes are not modeled: either all of buf is
// appended or an error is returned.
func (s *WriteStream) Write(ctx context.Context, buf []byte) (int, error) {
	key, err := s.engine.Strings.Append(ctx, s.tr, s.stringKey, buf)
	if err != nil {
		return 0, err
	}
	s.stringKey = key
	s.sum.Write(buf)
	return len(buf), nil
}

// Close finalizes the running MD5 (if not already done) and seals it into
// the rep record. Idempotent.
func (s *WriteStream) Close(ctx context.Context) error {
	if s.finalized {
		return nil
	}

	rp, err := s.engine.Reps.Read(ctx, s.tr, s.repKey)
	if err != nil {
		return err
	}
	if !rp.IsMutable(s.txnID) {
		return engineerr.ErrRepNotMutable
	}

	copy(rp.Checksum[:], s.sum.Sum(nil))
	if err := s.engine.Reps.Write(ctx, s.tr, rp); err != nil {
		return err
	}

	s.finalized = true
	return nil
}
