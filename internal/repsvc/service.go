// Package repsvc is the façade service wiring trail, the rep and string
// stores, the single-writer lock, the range-read cache, and the stream
// engine together — the representation-engine analogue of how an
// object-storage backend's filesystem.Storage is the single entry
// point over its sharded lock plus data/temp directories.
package repsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/engineerr"
	"github.com/prn-tf/repstore/internal/lock"
	"github.com/prn-tf/repstore/internal/metrics"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/repository"
	"github.com/prn-tf/repstore/internal/repstream"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

// Config tunes the façade's cross-cutting behavior. Zero values fall back
// to sane defaults in New.
type Config struct {
	// MaxAttempts bounds how many times RunTrail replays an operation
	// that reports a retryable error.
	MaxAttempts int

	// LockTTL bounds how long a write-stream lock is held before it is
	// considered abandoned and reclaimable by another trail.
	LockTTL time.Duration

	// RangeCacheTTL controls how long a reconstructed byte range stays
	// cached. Zero is passed to the cache unchanged: memory.Cache then
	// keeps the entry without expiry and rediscache applies its default TTL.
	RangeCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

// Beginner starts a fresh backing-store transaction for one trail
// attempt. Both pgdb.DB.Begin and sqlitedb.DB.Begin satisfy this shape.
type Beginner func(ctx context.Context) (trail.Tx, error)

// Service is the engine's single entry point.
type Service struct {
	cfg Config

	begin  Beginner
	locker lock.Locker
	cache  repository.Cache // nil disables range caching
	m      *metrics.Metrics
	log    zerolog.Logger

	engine *repstream.Engine

	mu          sync.Mutex
	openStreams map[string]map[string]string // trail ID -> rep key -> "read"|"write"
}

// New wires reps, strings, the stream engine, a single-writer locker, an
// optional range-read cache, metrics, and a trail beginner into a Service.
// A nil locker disables cross-trail write serialization (equivalent to
// lock.NewNoOpLocker()); a nil cache disables range caching.
func New(reps rep.Store, strings strstore.Store, locker lock.Locker, cache repository.Cache, m *metrics.Metrics, logger zerolog.Logger, begin Beginner, cfg Config) *Service {
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &Service{
		cfg:         cfg.withDefaults(),
		begin:       begin,
		locker:      locker,
		cache:       cache,
		m:           m,
		log:         logger,
		engine:      repstream.New(reps, strings),
		openStreams: make(map[string]map[string]string),
	}
}

// Reps exposes the underlying rep store, for callers that need direct
// record access (e.g. repsctl's stat command).
func (s *Service) Reps() rep.Store { return s.engine.Reps }

// StringSize reports the backing-store size of one string key, for
// callers that need it without reconstructing the content (e.g. the
// compactor's savings accounting).
func (s *Service) StringSize(ctx context.Context, tr *trail.Trail, key string) (int64, error) {
	return s.engine.Strings.Size(ctx, tr, key)
}

// Begin opens one trail attempt against the configured backing store.
func (s *Service) Begin(ctx context.Context) (*trail.Trail, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin trail: %v", engineerr.ErrGeneral, err)
	}
	return trail.New(tx, s.log), nil
}

// RunTrail runs fn inside successive trails until it succeeds, hits a
// non-retryable error, or exhausts MaxAttempts, counting each retry and
// recording one trail-metrics sample for the whole run.
func (s *Service) RunTrail(ctx context.Context, operation string, fn func(ctx context.Context, tr *trail.Trail) error) error {
	start := time.Now()
	retried := false

	err := trail.Retry(ctx, s.cfg.MaxAttempts, s.beginTrail, func(ctx context.Context, tr *trail.Trail) error {
		if retried && s.m != nil {
			s.m.TrailRetriesTotal.Inc()
		}
		retried = true
		return fn(ctx, tr)
	})

	if s.m != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.m.RecordTrail(operation, outcome, time.Since(start).Seconds(), false)
	}
	return err
}

func (s *Service) beginTrail(ctx context.Context) (*trail.Trail, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return trail.New(tx, s.log), nil
}
