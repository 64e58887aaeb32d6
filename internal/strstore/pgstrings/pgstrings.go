// Package pgstrings implements strstore.Store against a Postgres strings
// table, in the same query idiom as pgreps.
package pgstrings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

// Repository implements strstore.Store against Postgres.
type Repository struct{}

// New creates a new Postgres-backed string store.
func New() strstore.Store {
	return &Repository{}
}

func txFromTrail(tr *trail.Trail) (pgx.Tx, error) {
	tx, ok := tr.Tx.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("pgstrings: trail is not backed by a postgres transaction")
	}
	return tx, nil
}

// Append appends data to the string at key, allocating a fresh key when
// key is empty.
func (r *Repository) Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return "", err
	}

	if key == "" {
		var newKey int64
		err := tx.QueryRow(ctx, `INSERT INTO strings (data) VALUES ($1) RETURNING key`, data).Scan(&newKey)
		if err != nil {
			return "", fmt.Errorf("failed to allocate new string: %w", err)
		}
		return fmt.Sprintf("%d", newKey), nil
	}

	tag, err := tx.Exec(ctx, `UPDATE strings SET data = data || $2 WHERE key = $1`, key, data)
	if err != nil {
		return "", fmt.Errorf("failed to append to string %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return "", strstore.ErrNotFound
	}
	return key, nil
}

// Read reads up to maxLen bytes starting at offset.
func (r *Repository) Read(ctx context.Context, tr *trail.Trail, key string, offset int64, maxLen int) ([]byte, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return nil, err
	}

	var out []byte
	query := `SELECT substring(data FROM $2::int FOR $3::int) FROM strings WHERE key = $1`
	err = tx.QueryRow(ctx, query, key, offset+1, maxLen).Scan(&out)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, strstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read string %s: %w", key, err)
	}
	return out, nil
}

// Size returns the current length of the string at key.
func (r *Repository) Size(ctx context.Context, tr *trail.Trail, key string) (int64, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return 0, err
	}

	var size int64
	err = tx.QueryRow(ctx, `SELECT length(data) FROM strings WHERE key = $1`, key).Scan(&size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, strstore.ErrNotFound
		}
		return 0, fmt.Errorf("failed to size string %s: %w", key, err)
	}
	return size, nil
}

// Clear truncates the string at key to empty.
func (r *Repository) Clear(ctx context.Context, tr *trail.Trail, key string) error {
	tx, err := txFromTrail(tr)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE strings SET data = '' WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to clear string %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return strstore.ErrNotFound
	}
	return nil
}

// Delete removes the string at key entirely.
func (r *Repository) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	tx, err := txFromTrail(tr)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM strings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete string %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return strstore.ErrNotFound
	}
	return nil
}
