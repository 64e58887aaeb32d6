// Package repstream is the stream facade: read and write streams
// layered over the range reader and rep store, plus deltify/undeltify
// and the mutable-rep lifecycle operations.
package repstream

import (
	"github.com/prn-tf/repstore/internal/rangereader"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/svndiff"
)

// Engine bundles the collaborators every stream operation needs.
type Engine struct {
	Reps     rep.Store
	Strings  strstore.Store
	Reader   *rangereader.Reader
	Producer *svndiff.Producer
}

// New builds an engine over the given backing stores, with a reader and
// diff producer constructed from them.
func New(reps rep.Store, strings strstore.Store) *Engine {
	return &Engine{
		Reps:     reps,
		Strings:  strings,
		Reader:   rangereader.New(reps, strings),
		Producer: svndiff.NewProducer(),
	}
}
