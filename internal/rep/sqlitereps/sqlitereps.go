// Package sqlitereps implements rep.Store against the sqlitedb local
// backend, mirroring pgreps's shape with sqlite's narrower dialect
// (manual key allocation, TEXT-encoded chunk JSON).
package sqlitereps

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prn-tf/repstore/internal/rep"
	"github.com/prn-tf/repstore/internal/sqlitedb"
	"github.com/prn-tf/repstore/internal/trail"
)

// Repository implements rep.Store against sqlite.
type Repository struct {
	db *sqlitedb.DB
}

// New creates a new sqlite-backed rep store.
func New(db *sqlitedb.DB) rep.Store {
	return &Repository{db: db}
}

type wireChunk struct {
	Offset    int64  `json:"offset"`
	Size      int64  `json:"size"`
	Version   byte   `json:"version"`
	StringKey string `json:"string_key"`
	RepKey    string `json:"rep_key"`
	Checksum  []byte `json:"checksum"`
}

func toWire(chunks []rep.Chunk) (string, error) {
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
	raw, err := json.Marshal(wire)
	return string(raw), err
}

func fromWire(data string) ([]rep.Chunk, error) {
	var wire []wireChunk
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
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

func txFromTrail(tr *trail.Trail) (*sql.Tx, error) {
	adapter, ok := tr.Tx.(*sqlitedb.TxAdapter)
	if !ok {
		return nil, fmt.Errorf("sqlitereps: trail is not backed by a sqlite transaction")
	}
	return adapter.Raw(), nil
}

// Read loads the rep record for key.
func (r *Repository) Read(ctx context.Context, tr *trail.Trail, key string) (*rep.Rep, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return nil, err
	}

	var (
		kind      string
		txnID     string
		checksum  []byte
		stringKey string
		chunksRaw string
	)
	out := &rep.Rep{}
	row := tx.QueryRowContext(ctx, `SELECT key, kind, txn_id, checksum, string_key, chunks FROM reps WHERE key = ?`, key)
	if err := row.Scan(&out.Key, &kind, &txnID, &checksum, &stringKey, &chunksRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

// Write atomically replaces the record at rp.Key.
func (r *Repository) Write(ctx context.Context, tr *trail.Trail, rp *rep.Rep) error {
	tx, err := txFromTrail(tr)
	if err != nil {
		return err
	}

	chunksRaw, err := toWire(rp.Chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE reps SET kind = ?, txn_id = ?, checksum = ?, string_key = ?, chunks = ? WHERE key = ?`,
		string(rp.Kind), rp.TxnID, rp.Checksum[:], rp.StringKey, chunksRaw, rp.Key)
	if err != nil {
		return fmt.Errorf("failed to write rep %s: %w", rp.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm write for rep %s: %w", rp.Key, err)
	}
	if n == 0 {
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

	res, err := tx.ExecContext(ctx, `INSERT INTO rep_key_seq (n) VALUES (1)`)
	if err != nil {
		return "", fmt.Errorf("failed to allocate rep key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read allocated rep key: %w", err)
	}
	key := fmt.Sprintf("r%d", id)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reps (key, kind, txn_id, checksum, string_key, chunks) VALUES (?, ?, ?, ?, ?, ?)`,
		key, string(rp.Kind), rp.TxnID, rp.Checksum[:], rp.StringKey, chunksRaw)
	if err != nil {
		return "", fmt.Errorf("failed to insert new rep: %w", err)
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

	res, err := tx.ExecContext(ctx, `DELETE FROM reps WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete rep %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm delete for rep %s: %w", key, err)
	}
	if n == 0 {
		return rep.ErrNotFound
	}
	return nil
}
