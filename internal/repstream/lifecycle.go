package repstream

import (
	"context"

	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

// GetMutableRep returns base's key if base is already mutable under
// txnID, otherwise allocates a fresh empty fulltext rep owned by txnID.
func (e *Engine) GetMutableRep(ctx context.Context, tr *trail.Trail, base *rep.Rep, txnID string) (string, error) {
	if base != nil && base.IsMutable(txnID) {
		return base.Key, nil
	}

	stringKey, err := e.Strings.Append(ctx, tr, "", nil)
	if err != nil {
		return "", err
	}

	fresh := rep.NewMutableFulltext("", stringKey, txnID)
	key, err := e.Reps.WriteNew(ctx, tr, fresh)
	if err != nil {
		return "", err
	}
	return key, nil
}

// DeleteRepIfMutable deletes repKey's record and its owned strings iff it
// is mutable under txnID (transaction-abort cleanup). A no-op otherwise.
func (e *Engine) DeleteRepIfMutable(ctx context.Context, tr *trail.Trail, repKey string, txnID string) error {
	rp, err := e.Reps.Read(ctx, tr, repKey)
	if err != nil {
		if err == rep.ErrNotFound {
			return nil
		}
		return err
	}
	if !rp.IsMutable(txnID) {
		return nil
	}

	if err := e.Reps.Delete(ctx, tr, repKey); err != nil {
		return err
	}

	switch rp.Kind {
	case rep.KindFulltext:
		return e.Strings.Delete(ctx, tr, rp.StringKey)
	case rep.KindDelta:
		for _, c := range rp.Chunks {
			if err := e.Strings.Delete(ctx, tr, c.StringKey); err != nil {
				return err
			}
		}
	}
	return nil
}
