package repsvc

import (
	"context"

	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

// GetMutableRep returns baseKey's rep key unchanged if it is already
// mutable under txnID, otherwise allocates a fresh mutable fulltext rep.
// An empty baseKey always allocates fresh.
func (s *Service) GetMutableRep(ctx context.Context, tr *trail.Trail, baseKey string, txnID string) (string, error) {
	var base *rep.Rep
	if baseKey != "" {
		r, err := s.engine.Reps.Read(ctx, tr, baseKey)
		if err != nil && err != rep.ErrNotFound {
			return "", err
		}
		base = r
	}
	return s.engine.GetMutableRep(ctx, tr, base, txnID)
}

// DeleteRepIfMutable deletes repKey and its backing strings iff it is
// mutable under txnID (transaction-abort cleanup).
func (s *Service) DeleteRepIfMutable(ctx context.Context, tr *trail.Trail, repKey string, txnID string) error {
	return s.engine.DeleteRepIfMutable(ctx, tr, repKey, txnID)
}
