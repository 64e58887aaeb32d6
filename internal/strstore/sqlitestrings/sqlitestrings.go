// Package sqlitestrings implements strstore.Store against the sqlitedb
// local backend.
package sqlitestrings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prn-tf/repstore/internal/sqlitedb"
	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

// Repository implements strstore.Store against sqlite.
type Repository struct{}

// New creates a new sqlite-backed string store.
func New() strstore.Store {
	return &Repository{}
}

func txFromTrail(tr *trail.Trail) (*sql.Tx, error) {
	adapter, ok := tr.Tx.(*sqlitedb.TxAdapter)
	if !ok {
		return nil, fmt.Errorf("sqlitestrings: trail is not backed by a sqlite transaction")
	}
	return adapter.Raw(), nil
}

// Append appends data to the string at key, allocating a fresh key when
// key is empty.
func (r *Repository) Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error) {
	tx, err := txFromTrail(tr)
	if err != nil {
		return "", err
	}

	if key == "" {
		res, err := tx.ExecContext(ctx, `INSERT INTO strings (data) VALUES (?)`, data)
		if err != nil {
			return "", fmt.Errorf("failed to allocate new string: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("failed to read allocated string key: %w", err)
		}
		return fmt.Sprintf("%d", id), nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE strings SET data = data || ? WHERE key = ?`, data, key)
	if err != nil {
		return "", fmt.Errorf("failed to append to string %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to confirm append for string %s: %w", key, err)
	}
	if n == 0 {
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
	row := tx.QueryRowContext(ctx, `SELECT substr(data, ?, ?) FROM strings WHERE key = ?`, offset+1, maxLen, key)
	if err := row.Scan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	row := tx.QueryRowContext(ctx, `SELECT length(data) FROM strings WHERE key = ?`, key)
	if err := row.Scan(&size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	res, err := tx.ExecContext(ctx, `UPDATE strings SET data = x'' WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to clear string %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm clear for string %s: %w", key, err)
	}
	if n == 0 {
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

	res, err := tx.ExecContext(ctx, `DELETE FROM strings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete string %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm delete for string %s: %w", key, err)
	}
	if n == 0 {
		return strstore.ErrNotFound
	}
	return nil
}
