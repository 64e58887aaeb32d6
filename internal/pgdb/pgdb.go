// Package pgdb wraps a pgx connection pool the way a repository/postgres
// package wraps db.Pool/db.WithTx, providing the backing transactional
// key-value store the representation engine treats as an external
// collaborator.
package pgdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps a pgx pool with a logger, mirroring the shape referenced
// throughout a repository/postgres/*_repo.go backend.
type DB struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

// Open connects to Postgres using dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxPoolSize int, logger zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if maxPoolSize > 0 {
		cfg.MaxConns = int32(maxPoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info().Msg("connected to postgres")
	return &DB{Pool: pool, Logger: logger}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping verifies the pool can still reach Postgres, satisfying
// httpapi's DatabaseChecker contract.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Begin starts a new transaction, ready to be wrapped in a trail.Trail.
func (db *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return db.Pool.BeginTx(ctx, pgx.TxOptions{})
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error, matching the pattern used throughout a
// postgres-repository codebase.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Schema is the DDL for the two tables the representation engine needs,
// plus the rep key sequence. Open does not apply it, and nothing in this
// module executes it; no migration framework is in scope.
const Schema = `
CREATE TABLE IF NOT EXISTS strings (
	key   BIGSERIAL PRIMARY KEY,
	data  BYTEA NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reps (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	txn_id     TEXT NOT NULL DEFAULT '',
	checksum   BYTEA NOT NULL,
	string_key TEXT NOT NULL DEFAULT '',
	chunks     JSONB NOT NULL DEFAULT '[]'
);

CREATE SEQUENCE IF NOT EXISTS reps_key_seq;
`
