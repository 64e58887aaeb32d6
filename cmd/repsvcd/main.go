// Command repsvcd runs the representation-storage service: a trail
// engine over a Postgres (or local SQLite) backing store, fronted by an
// HTTP surface exposing health and metrics, with a background compactor
// deltifying cold reps on an interval.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/cache/rediscache"
	"github.com/prn-tf/repstore/internal/compactor"
	"github.com/prn-tf/repstore/internal/config"
	"github.com/prn-tf/repstore/internal/httpapi"
	"github.com/prn-tf/repstore/internal/lock"
	"github.com/prn-tf/repstore/internal/lock/redislock"
	"github.com/prn-tf/repstore/internal/metrics"
	"github.com/prn-tf/repstore/internal/pgdb"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/rep/pgreps"
	"github.com/prn-tf/repstore/internal/rep/sqlitereps"
	"github.com/prn-tf/repstore/internal/repository"
	"github.com/prn-tf/repstore/internal/repsvc"
	"github.com/prn-tf/repstore/internal/sqlitedb"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/strstore/pgstrings"
	"github.com/prn-tf/repstore/internal/strstore/sealedstrings"
	"github.com/prn-tf/repstore/internal/strstore/sqlitestrings"
	"github.com/prn-tf/repstore/internal/trail"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/TOML/JSON config file")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("repsvcd exited with error")
	}
}

func run(configPath string, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		reps       rep.Store
		strs       strstore.Store
		beginner   repsvc.Beginner
		dbChecker  httpapi.DatabaseChecker
		locker     lock.Locker
		cacheImpl  *rediscache.Cache
		redisCheck httpapi.CacheChecker
		closers    []func()
	)

	if cfg.Engine.LocalMode {
		db, err := sqlitedb.Open(cfg.Engine.LocalPath, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { db.Close() })

		reps = sqlitereps.New(db)
		strs = sqlitestrings.New()
		dbChecker = db
		locker = lock.NewMemoryLocker()
		beginner = func(ctx context.Context) (trail.Tx, error) { return db.Begin(ctx) }
	} else {
		db, err := pgdb.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxPoolSize, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { db.Close() })

		reps = pgreps.New(db)
		strs = pgstrings.New()
		dbChecker = db
		beginner = func(ctx context.Context) (trail.Tx, error) { return db.Begin(ctx) }

		redisClient, err := rediscache.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() { redisClient.Close() })

		locker = redislock.NewLocker(redisClient.Raw())
		cacheImpl = rediscache.NewCache(redisClient, cfg.Engine.RangeCacheTTL)
		redisCheck = redisClient
	}

	if cfg.Engine.EncryptAtRest {
		masterKey := []byte(os.Getenv("REPSTORE_MASTER_KEY"))
		sealed, err := sealedstrings.New(strs, masterKey)
		if err != nil {
			return err
		}
		strs = sealed
	}

	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	var cache repository.Cache
	if cacheImpl != nil {
		cache = cacheImpl
	}

	svc := repsvc.New(reps, strs, locker, cache, m, logger, beginner, repsvc.Config{
		RangeCacheTTL: cfg.Engine.RangeCacheTTL,
	})

	worker := compactor.NewWorker(svc, noCandidates, m, compactor.Config{}, logger)
	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer worker.Stop()

	health := httpapi.NewHealthChecker(httpapi.HealthCheckerConfig{
		DB:     dbChecker,
		Cache:  redisCheck,
		Logger: logger,
	})
	router := httpapi.NewRouter(httpapi.RouterConfig{Health: health, Metrics: m, Logger: logger})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("repsvcd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// noCandidates is the default compaction candidate source until an
// index/access-tracker is wired in: it finds nothing, so the worker's
// ticker is a no-op until a real CandidateSource replaces it.
func noCandidates(ctx context.Context, limit int) ([]compactor.Candidate, error) {
	return nil, nil
}
