// Package pgreps implements rep.Store against a Postgres reps table,
// modeled on a repository/postgres accesskey-repo query style
// (db.Pool.QueryRow, pgx.ErrNoRows, wrapped errors).
package pgreps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/repstore/internal/pgdb"
	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/trail"
)

// Repository implements rep.Store against Postgres.
type Repository struct {
	db *pgdb.DB
}

// New creates a new Postgres-backed rep store.
func New(db *pgdb.DB) rep.Store {
	return &Repository{db: db}
}

// wireChunk is the JSON shape persisted in the reps.chunks column.
type wireChunk struct {
	Offset    int64  `json:"offset"`
	Size      int64  `json:"size"`
	Version   byte   `json:"version"`
	StringKey string `json:"string_key"`
	RepKey    string `json:"rep_key"`
	Checksum  []byte `json:"checksum"`
}

func toWire(chunks []rep.Chunk) ([]byte, error) {
	wire := make([]wireChunk, len(chunks))
	for i, c := range chunks {
		wire[i] = wireChunk{
			Offset:    c.Offset,
			Size:      c.Size,
			Version:   c.Version,
			StringKey: c.StringKey,
			RepKey:    c.RepKey,
			Checksum:  c.Checksum[:],
		}
	}
	return json.Marshal(wire)
}

func fromWire(data []byte) ([]rep.Chunk, error) {
	var wire []wireChunk
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunks: %w", err)
	}
	chunks := make([]rep.Chunk, len(wire))
	for i, w := range wire {
		c := rep.Chunk{
			Offset:    w.Offset,
			Size:      w.Size,
			Version:   w.Version,
			StringKey: w.StringKey,
			RepKey:    w.RepKey,
		}
		copy(c.Checksum[:], w.Checksum)
		chunks[i] = c
	}
	return chunks, nil
}

func txFromTrail(tr *trail.Trail) (pgx.Tx, error) {
	tx, ok := tr.Tx.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("pgreps: trail is not backed by a postgres transaction")
	}
	return tx, nil
}

// Read loads the rep record for key.
func (r *Repository) Read(ctx context.Context, tr *trail.Trail, key string) (*rep.Rep, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT key, kind, txn_id, checksum, string_key, chunks
		FROM reps
		WHERE key = $1
	`

	var (
		kind      string
		txnID     string
		checksum  []byte
		stringKey string
		chunksRaw []byte
	)
	out := &rep.Rep{}
	err = tx.QueryRow(ctx, query, key).Scan(&out.Key, &kind, &txnID, &checksum, &stringKey, &chunksRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rep.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read rep %s: %w", key, err)
	}

	out.Kind = rep.Kind(kind)
	out.TxnID = txnID
	out.StringKey = stringKey
	copy(out.Checksum[:], checksum)

	chunks, err := fromWire(chunksRaw)
	if err != nil {
		return nil, err
	}
	out.Chunks = chunks

	return out, nil
}

// Write atomically replaces the record at r.Key.
func (r *Repository) Write(ctx context.Context, tr *trail.Trail, rp *rep.Rep) error {
	tx, err := txFromTrail(tr)
	if err != nil {
		return err
	}

	chunksRaw, err := toWire(rp.Chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}

	query := `
		UPDATE reps
		SET kind = $2, txn_id = $3, checksum = $4, string_key = $5, chunks = $6
		WHERE key = $1
	`
	tag, err := tx.Exec(ctx, query, rp.Key, string(rp.Kind), rp.TxnID, rp.Checksum[:], rp.StringKey, chunksRaw)
	if err != nil {
		return fmt.Errorf("failed to write rep %s: %w", rp.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return rep.ErrNotFound
	}
	return nil
}

// WriteNew allocates a fresh key and persists rp under it.
func (r *Repository) WriteNew(ctx context.Context, tr *trail.Trail, rp *rep.Rep) (string, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return "", err
	}

	chunksRaw, err := toWire(rp.Chunks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chunks: %w", err)
	}

	query := `
		INSERT INTO reps (key, kind, txn_id, checksum, string_key, chunks)
		VALUES ('r' || nextval('reps_key_seq')::text, $1, $2, $3, $4, $5)
		RETURNING key
	`
	var key string
	err = tx.QueryRow(ctx, query, string(rp.Kind), rp.TxnID, rp.Checksum[:], rp.StringKey, chunksRaw).Scan(&key)
	if err != nil {
		return "", fmt.Errorf("failed to allocate new rep: %w", err)
	}

	rp.Key = key
	return key, nil
}

// Delete removes the rep record at key.
func (r *Repository) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	tx, err := txFromTrail(tr)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM reps WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete rep %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return rep.ErrNotFound
	}
	return nil
}
