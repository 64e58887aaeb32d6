package repsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/repstream"
	"github.com/prn-tf/repstore/internal/trail"
)

// markStream records that tr is using repKey as kind ("read" or "write"),
// refusing to open a write stream and a read stream on the same rep
// within the same trail.
func (s *Service) markStream(tr *trail.Trail, repKey, kind string) error {
	if repKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byRep := s.openStreams[tr.ID]
	if byRep == nil {
		byRep = make(map[string]string)
		s.openStreams[tr.ID] = byRep
	}
	if existing, ok := byRep[repKey]; ok && existing != kind {
		return fmt.Errorf("%w: rep %s already has a %s stream open in trail %s", engineerr.ErrGeneral, repKey, existing, tr.ID)
	}
	byRep[repKey] = kind
	return nil
}

func (s *Service) unmarkStream(tr *trail.Trail, repKey string) {
	if repKey == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if byRep := s.openStreams[tr.ID]; byRep != nil {
		delete(byRep, repKey)
		if len(byRep) == 0 {
			delete(s.openStreams, tr.ID)
		}
	}
}

// ReadStream wraps repstream.ReadStream with the interleaved-stream guard.
type ReadStream struct {
	*repstream.ReadStream
	svc    *Service
	tr     *trail.Trail
	repKey string
}

// OpenReadStream opens a checksum-verifying read stream over repKey.
func (s *Service) OpenReadStream(ctx context.Context, tr *trail.Trail, repKey string) (*ReadStream, error) {
	if err := s.markStream(tr, repKey, "read"); err != nil {
		return nil, err
	}
	rs, err := s.engine.OpenRead(ctx, tr, repKey)
	if err != nil {
		s.unmarkStream(tr, repKey)
		return nil, err
	}
	return &ReadStream{ReadStream: rs, svc: s, tr: tr, repKey: repKey}, nil
}

// Release drops this stream's interleave-guard bookkeeping. A ReadStream
// has no backing-store resource to close, so this is the only cleanup
// needed once the caller is done reading.
func (r *ReadStream) Release() {
	r.svc.unmarkStream(r.tr, r.repKey)
}

// WriteStream wraps repstream.WriteStream with the interleaved-stream
// guard and the single-writer lock.
type WriteStream struct {
	*repstream.WriteStream
	svc    *Service
	tr     *trail.Trail
	repKey string
}

// OpenWriteStream acquires the single-writer lock on repKey, then opens a
// write stream over it. The lock is held until Close.
func (s *Service) OpenWriteStream(ctx context.Context, tr *trail.Trail, repKey string, txnID string) (*WriteStream, error) {
	if err := s.markStream(tr, repKey, "write"); err != nil {
		return nil, err
	}

	waitStart := time.Now()
	acquired, err := s.locker.AcquireWithRetry(ctx, repKey, s.cfg.LockTTL, 5, 20*time.Millisecond)
	if err != nil {
		s.unmarkStream(tr, repKey)
		return nil, err
	}
	if s.m != nil {
		outcome := "acquired"
		if !acquired {
			outcome = "contended"
		}
		s.m.RecordLockAcquire(outcome, time.Since(waitStart).Seconds())
	}
	if !acquired {
		s.unmarkStream(tr, repKey)
		return nil, fmt.Errorf("%w: rep %s is being written by another trail", engineerr.ErrRepNotMutable, repKey)
	}

	ws, err := s.engine.OpenWrite(ctx, tr, repKey, txnID)
	if err != nil {
		_, _ = s.locker.Release(ctx, repKey)
		s.unmarkStream(tr, repKey)
		return nil, err
	}
	return &WriteStream{WriteStream: ws, svc: s, tr: tr, repKey: repKey}, nil
}

// Close seals the stream's checksum, releases the single-writer lock, and
// drops the interleave-guard bookkeeping.
func (w *WriteStream) Close(ctx context.Context) error {
	err := w.WriteStream.Close(ctx)
	_, _ = w.svc.locker.Release(ctx, w.repKey)
	w.svc.unmarkStream(w.tr, w.repKey)
	return err
}
