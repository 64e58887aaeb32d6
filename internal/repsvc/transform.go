package repsvc

import (
	"context"

	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

// Deltify replaces targetKey's representation with a delta against
// sourceKey, recording the achieved savings ratio. A fulltext target is
// replaced only when the delta is smaller; a delta target is always
// replaced.
func (s *Service) Deltify(ctx context.Context, tr *trail.Trail, targetKey, sourceKey string) error {
	var beforeSize int64
	if s.m != nil {
		if r, err := s.engine.Reps.Read(ctx, tr, targetKey); err == nil && r.Kind == rep.KindFulltext {
			beforeSize, _ = s.engine.Strings.Size(ctx, tr, r.StringKey)
		}
	}

	if err := s.engine.Deltify(ctx, tr, targetKey, sourceKey); err != nil {
		if s.m != nil {
			s.m.RecordDeltify("error", 0)
		}
		return err
	}

	if s.m != nil {
		r, err := s.engine.Reps.Read(ctx, tr, targetKey)
		switch {
		case err != nil:
			s.m.RecordDeltify("error", 0)
		case r.Kind == rep.KindDelta && beforeSize > 0:
			var diffSize int64
			for _, c := range r.Chunks {
				sz, serr := s.engine.Strings.Size(ctx, tr, c.StringKey)
				if serr == nil {
					diffSize += sz
				}
			}
			ratio := 1 - float64(diffSize)/float64(beforeSize)
			if ratio < 0 {
				ratio = 0
			}
			s.m.RecordDeltify("applied", ratio)
		default:
			s.m.RecordDeltify("size_guard_noop", 0)
		}
	}

	s.invalidateRange(ctx, targetKey)
	return nil
}

// Undeltify replaces a delta rep with a materialized fulltext rep.
func (s *Service) Undeltify(ctx context.Context, tr *trail.Trail, repKey string) error {
	err := s.engine.Undeltify(ctx, tr, repKey)
	if s.m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.m.RecordUndeltify(outcome)
	}
	if err == nil {
		s.invalidateRange(ctx, repKey)
	}
	return err
}

// invalidateRange drops the range cache entries for repKey after its
// backing representation changes shape, by deleting every key under the
// "rng:<repKey>:" prefix that range reads use. Only a cache with
// DeletePattern (such as rediscache) is swept; with any other cache,
// nothing is dropped.
func (s *Service) invalidateRange(ctx context.Context, repKey string) {
	if s.cache == nil {
		return
	}
	type patternDeleter interface {
		DeletePattern(ctx context.Context, pattern string) error
	}
	if pd, ok := s.cache.(patternDeleter); ok {
		_ = pd.DeletePattern(ctx, "rng:"+repKey+":*")
	}
}
