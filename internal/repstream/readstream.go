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

// ReadStream exposes chunked, checksum-verifying reads over a
// representation's reconstructed fulltext.
type ReadStream struct {
	engine *Engine
	tr     *trail.Trail

	repKey  string
	size    int64
	offset  int64
	sum     hash.Hash
	sealed  bool
}

// OpenRead opens a read stream over repKey. An empty repKey models a rep
// that does not exist yet: every read returns 0 bytes (end of stream),
// since such a stream's offset stays at zero.
func (e *Engine) OpenRead(ctx context.Context, tr *trail.Trail, repKey string) (*ReadStream, error) {
	rs := &ReadStream{engine: e, tr: tr, repKey: repKey, sum: md5.New()}
	if repKey == "" {
		return rs, nil
	}

	rp, err := e.Reps.Read(ctx, tr, repKey)
	if err != nil {
		return nil, err
	}

	size, err := e.contentSize(ctx, tr, rp)
	if err != nil {
		return nil, err
	}
	rs.size = size
	return rs, nil
}

// contentSize returns the reconstructed content length of rp: the
// backing string's size for fulltext, or the delta chain's declared size.
func (e *Engine) contentSize(ctx context.Context, tr *trail.Trail, rp *rep.Rep) (int64, error) {
	switch rp.Kind {
	case rep.KindFulltext:
		return e.Strings.Size(ctx, tr, rp.StringKey)
	case rep.KindDelta:
		return rp.DeltaSize(), nil
	default:
		return 0, fmt.Errorf("%w: rep %s has unknown kind %q", engineerr.ErrCorrupt, rp.Key, rp.Kind)
	}
}

// Read copies up to len(buf) bytes of reconstructed content into buf,
// returning the number of bytes copied. A return of 0 with a nil error
// signals end of stream.
func (s *ReadStream) Read(ctx context.Context, buf []byte) (int, error) {
	if s.repKey == "" {
		if s.offset > 0 {
			return 0, engineerr.ErrRepChanged
		}
		return 0, nil
	}

	n, err := s.engine.Reader.ReadRange(ctx, s.tr, s.repKey, s.offset, buf)
	if err != nil {
		return n, err
	}

	if n > 0 {
		s.sum.Write(buf[:n])
		s.offset += int64(n)
	}

	if !s.sealed && s.offset >= s.size {
		if err := s.verify(ctx); err != nil {
			return n, err
		}
	}

	return n, nil
}

func (s *ReadStream) verify(ctx context.Context) error {
	rp, err := s.engine.Reps.Read(ctx, s.tr, s.repKey)
	if err != nil {
		return err
	}

	var got [16]byte
	copy(got[:], s.sum.Sum(nil))

	if rp.ChecksumSealed() && rp.Checksum != got {
		return fmt.Errorf("%w: checksum mismatch for rep %s", engineerr.ErrCorrupt, s.repKey)
	}

	s.sealed = true
	return nil
}
