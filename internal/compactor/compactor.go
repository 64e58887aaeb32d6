// Package compactor provides background deltify compaction and lazy
// undeltify-on-corruption fallback, adapted from a migration package's
// Strategy/Worker-shaped background migration, onto deltify/undeltify
// instead of encryption/composite-blob migration.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/metrics"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/repsvc"
	"github.com/prn-tf/repstore/internal/trail"
)

// Candidate names one fulltext rep worth trying to deltify against a
// chosen source rep.
type Candidate struct {
	TargetKey string
	SourceKey string
}

// CandidateSource supplies one batch of compaction candidates. Choosing
// which reps are "old" or "rarely touched" is left to the caller (an
// index or access-time tracker outside this engine's contract) —
// compactor only applies the transform and reports results.
type CandidateSource func(ctx context.Context, limit int) ([]Candidate, error)

// BatchResult summarizes one compaction sweep.
type BatchResult struct {
	StartTime     time.Time
	EndTime       time.Time
	RepsScanned   int
	RepsDeltified int
	RepsSkipped   int
	Errors        []string
}

// Worker runs compaction sweeps on an interval until stopped.
type Worker struct {
	svc       *repsvc.Service
	source    CandidateSource
	m         *metrics.Metrics
	batchSize int
	interval  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastResult *BatchResult
}

// Config tunes a Worker.
type Config struct {
	BatchSize int
	Interval  time.Duration
}

// NewWorker builds a compaction worker over svc, pulling candidates from
// source. m is optional; pass nil to skip sweep-level metrics.
func NewWorker(svc *repsvc.Service, source CandidateSource, m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Worker{
		svc:       svc,
		source:    source,
		m:         m,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		logger:    logger.With().Str("component", "compactor").Logger(),
	}
}

// Start runs sweeps every Interval until the context is cancelled or Stop
// is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("compactor: worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					w.logger.Warn().Err(err).Msg("compaction sweep failed")
				}
			}
		}
	}()
	return nil
}

// Stop halts the background loop and waits for it to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
	return nil
}

// RunOnce pulls one batch of candidates and deltifies each, recording the
// outcome. A candidate that hits the deltify size guard (stays fulltext)
// counts as skipped, not failed.
func (w *Worker) RunOnce(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{StartTime: time.Now()}

	candidates, err := w.source(ctx, w.batchSize)
	if err != nil {
		result.EndTime = time.Now()
		return result, fmt.Errorf("compactor: listing candidates: %w", err)
	}

	var bytesSaved int64
	for _, c := range candidates {
		result.RepsScanned++
		deltified, saved, err := w.compactOne(ctx, c)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.TargetKey, err))
		case deltified:
			result.RepsDeltified++
			bytesSaved += saved
		default:
			result.RepsSkipped++
		}
	}

	result.EndTime = time.Now()

	w.mu.Lock()
	w.lastResult = result
	w.mu.Unlock()

	if w.m != nil {
		w.m.RecordCompaction(result.EndTime.Sub(result.StartTime).Seconds(), result.RepsDeltified, bytesSaved)
	}

	w.logger.Info().
		Int("scanned", result.RepsScanned).
		Int("deltified", result.RepsDeltified).
		Int("skipped", result.RepsSkipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.EndTime.Sub(result.StartTime)).
		Msg("compaction sweep complete")

	return result, nil
}

// compactOne runs one candidate's deltify inside its own trail, reporting
// whether the target actually became a delta rep (true, with bytes
// saved) or the size guard kept it fulltext (false).
func (w *Worker) compactOne(ctx context.Context, c Candidate) (bool, int64, error) {
	var deltified bool
	var bytesSaved int64
	err := w.svc.RunTrail(ctx, "compact", func(ctx context.Context, tr *trail.Trail) error {
		before, err := w.svc.Reps().Read(ctx, tr, c.TargetKey)
		if err != nil {
			return err
		}
		var beforeSize int64
		if before.Kind == rep.KindFulltext {
			beforeSize, _ = sizeOfFulltext(ctx, tr, w.svc, before)
		}

		if err := w.svc.Deltify(ctx, tr, c.TargetKey, c.SourceKey); err != nil {
			return err
		}

		after, err := w.svc.Reps().Read(ctx, tr, c.TargetKey)
		if err != nil {
			return err
		}
		deltified = after.Kind == rep.KindDelta
		if deltified && beforeSize > 0 {
			afterSize, _ := sizeOfDelta(ctx, tr, w.svc, after)
			if afterSize < beforeSize {
				bytesSaved = beforeSize - afterSize
			}
		}
		return nil
	})
	return deltified, bytesSaved, err
}

// sizeOfFulltext returns a fulltext rep's backing string size.
func sizeOfFulltext(ctx context.Context, tr *trail.Trail, svc *repsvc.Service, r *rep.Rep) (int64, error) {
	return svc.StringSize(ctx, tr, r.StringKey)
}

// sizeOfDelta sums the stored sizes of a delta rep's chunk payloads.
func sizeOfDelta(ctx context.Context, tr *trail.Trail, svc *repsvc.Service, r *rep.Rep) (int64, error) {
	var total int64
	for _, c := range r.Chunks {
		sz, err := svc.StringSize(ctx, tr, c.StringKey)
		if err != nil {
			return 0, err
		}
		total += sz
	}
	return total, nil
}

// LastResult returns the most recently completed sweep's result, or nil
// if none has run yet.
func (w *Worker) LastResult() *BatchResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastResult
}

// ReadWithFallback reads repKey's full content, and on a corrupt delta
// chain falls back to undeltifying the rep back to fulltext and retrying
// the read once. This is the on-access counterpart to RunOnce's
// scheduled sweeps: a reader need not wait for the next sweep to recover
// a rep whose chain has gone bad, and a rep that survives the fallback
// never hits the same corrupt chain again.
func (w *Worker) ReadWithFallback(ctx context.Context, tr *trail.Trail, repKey string) ([]byte, error) {
	data, err := w.svc.ReadAll(ctx, tr, repKey)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, engineerr.ErrCorrupt) {
		return nil, err
	}

	w.logger.Warn().Str("rep", repKey).Err(err).Msg("corrupt delta chain, falling back to undeltify")
	if uErr := w.svc.Undeltify(ctx, tr, repKey); uErr != nil {
		return nil, fmt.Errorf("compactor: lazy undeltify fallback for %s: %w (original: %v)", repKey, uErr, err)
	}

	data, err = w.svc.ReadAll(ctx, tr, repKey)
	if err != nil {
		return nil, fmt.Errorf("compactor: read after undeltify fallback for %s: %w", repKey, err)
	}
	return data, nil
}
