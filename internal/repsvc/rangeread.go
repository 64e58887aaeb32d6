package repsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

func rangeCacheKey(repKey string, offset int64, length int) string {
	return fmt.Sprintf("rng:%s:%d:%d", repKey, offset, length)
}

// ReadRange reconstructs len(out) bytes of repKey's content starting at
// offset, consulting the range cache first when one is configured.
func (s *Service) ReadRange(ctx context.Context, tr *trail.Trail, repKey string, offset int64, out []byte) (int, error) {
	start := time.Now()

	if s.cache != nil && len(out) > 0 {
		key := rangeCacheKey(repKey, offset, len(out))
		if cached, err := s.cache.Get(ctx, key); err == nil {
			if s.m != nil {
				s.m.RecordCacheAccess("range", true)
			}
			n := copy(out, cached)
			return n, nil
		}
		if s.m != nil {
			s.m.RecordCacheAccess("range", false)
		}
	}

	kind := "unknown"
	if r, err := s.engine.Reps.Read(ctx, tr, repKey); err == nil {
		kind = string(r.Kind)
	}

	n, chunks, err := s.readRangeCounting(ctx, tr, repKey, offset, out)
	if err != nil {
		return n, err
	}

	if s.m != nil {
		s.m.RecordRangeRead(kind, time.Since(start).Seconds(), chunks, n)
	}

	if s.cache != nil && n > 0 {
		key := rangeCacheKey(repKey, offset, len(out))
		_ = s.cache.Set(ctx, key, out[:n], s.cfg.RangeCacheTTL)
	}

	return n, nil
}

// readRangeCounting delegates to the range reader and reports a rough
// chunk count (1 for a fulltext rep; for a delta rep, the number of chunks
// from the one holding offset to the end of the rep) for the
// composition-chain-length metric.
func (s *Service) readRangeCounting(ctx context.Context, tr *trail.Trail, repKey string, offset int64, out []byte) (int, int, error) {
	r, err := s.engine.Reps.Read(ctx, tr, repKey)
	chunks := 1
	if err == nil && r.Kind == rep.KindDelta {
		if idx, ok := r.ChunkAt(offset); ok {
			chunks = len(r.Chunks) - idx
		}
	}

	n, err := s.engine.Reader.ReadRange(ctx, tr, repKey, offset, out)
	return n, chunks, err
}

// ReadAll reconstructs repKey's entire content.
func (s *Service) ReadAll(ctx context.Context, tr *trail.Trail, repKey string) ([]byte, error) {
	rs, err := s.OpenReadStream(ctx, tr, repKey)
	if err != nil {
		return nil, err
	}
	defer rs.Release()

	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := rs.Read(ctx, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}
