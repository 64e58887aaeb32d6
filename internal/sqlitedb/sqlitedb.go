// Package sqlitedb wraps modernc.org/sqlite behind database/sql, giving
// the engine a swappable local/single-process backend alongside the
// primary Postgres store: a "local_mode" test/dev substitute for
// environments without a Postgres instance available.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

// DB wraps a *sql.DB opened against the modernc.org/sqlite driver.
type DB struct {
	Conn   *sql.DB
	Logger zerolog.Logger
}

// Open opens (and creates, if absent) a sqlite database file at path.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("opened sqlite database")
	return &DB{Conn: conn, Logger: logger}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// Ping verifies the connection is still usable, satisfying httpapi's
// DatabaseChecker contract.
func (db *DB) Ping(ctx context.Context) error {
	return db.Conn.PingContext(ctx)
}

// Begin starts a new transaction wrapped to satisfy trail.Tx.
func (db *DB) Begin(ctx context.Context) (*TxAdapter, error) {
	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin sqlite transaction: %w", err)
	}
	return &TxAdapter{tx: tx}, nil
}

// TxAdapter adapts *sql.Tx (whose Commit/Rollback take no context) to the
// trail.Tx contract.
type TxAdapter struct {
	tx *sql.Tx
}

// Commit commits the wrapped transaction.
func (a *TxAdapter) Commit(ctx context.Context) error {
	return a.tx.Commit()
}

// Rollback rolls back the wrapped transaction.
func (a *TxAdapter) Rollback(ctx context.Context) error {
	return a.tx.Rollback()
}

// Raw returns the underlying *sql.Tx for use by repository implementations.
func (a *TxAdapter) Raw() *sql.Tx {
	return a.tx
}

// Schema is the DDL for the strings and reps tables the representation
// engine needs, plus a rep_key_seq table standing in for a sequence, in
// sqlite's dialect (no JSONB, no sequences, no BYTEA).
const Schema = `
CREATE TABLE IF NOT EXISTS strings (
	key  INTEGER PRIMARY KEY AUTOINCREMENT,
	data BLOB NOT NULL DEFAULT x''
);

CREATE TABLE IF NOT EXISTS reps (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	txn_id     TEXT NOT NULL DEFAULT '',
	checksum   BLOB NOT NULL,
	string_key TEXT NOT NULL DEFAULT '',
	chunks     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS rep_key_seq (
	n INTEGER NOT NULL
);
`
