// Package sealedstrings decorates any strstore.Store with ChaCha20-
// Poly1305 at-rest encryption, adapted from an EncryptBlob/DecryptBlob
// whole-blob path (a representation's backing string is appended a
// chunk at a time and later read at arbitrary offsets, so the
// per-chunk streaming reader/writer pair isn't a fit for random-access
// reads; this decorator keeps one ciphertext blob per key and re-seals
// it on every append).
package sealedstrings

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/prn-tf/repstore/internal/strstore"
	"github.com/prn-tf/repstore/internal/trail"
)

const (
	keySize   = chacha20poly1305.KeySize
	nonceSize = chacha20poly1305.NonceSize
	overhead  = chacha20poly1305.Overhead
	// headerSize is a 4-byte big-endian ciphertext length + nonce.
	headerSize = 4 + nonceSize
)

// Store wraps an inner strstore.Store, transparently encrypting and
// decrypting the bytes it persists. Chunk layout: [size:4][nonce:12][ciphertext+tag].
type Store struct {
	inner     strstore.Store
	masterKey []byte
}

// New wraps inner with ChaCha20-Poly1305 at-rest encryption keyed off
// masterKey (32 bytes).
func New(inner strstore.Store, masterKey []byte) (*Store, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("sealedstrings: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	return &Store{inner: inner, masterKey: masterKey}, nil
}

func (s *Store) deriveKey(salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, s.masterKey, salt, []byte("repstore-sealed-strings"))
	derived := make([]byte, keySize)
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return derived, nil
}

// Append decrypts the existing plaintext (if any), appends data, and
// re-seals the whole string under one fresh nonce per call.
func (s *Store) Append(ctx context.Context, tr *trail.Trail, key string, data []byte) (string, error) {
	var plaintext []byte
	if key != "" {
		existing, err := s.readAll(ctx, tr, key)
		if err != nil && err != strstore.ErrNotFound {
			return "", err
		}
		plaintext = existing
	}
	plaintext = append(plaintext, data...)

	if key == "" {
		// The key salts the derivation, so a new string is allocated
		// empty first and then sealed under its own key.
		newKey, err := s.inner.Append(ctx, tr, "", []byte{})
		if err != nil {
			return "", err
		}
		key = newKey
	}

	sealed, err := s.seal(key, plaintext)
	if err != nil {
		return "", err
	}

	if err := s.inner.Clear(ctx, tr, key); err != nil {
		return "", err
	}
	return s.inner.Append(ctx, tr, key, sealed)
}

// Read decrypts the full string and slices the requested range.
func (s *Store) Read(ctx context.Context, tr *trail.Trail, key string, offset int64, maxLen int) ([]byte, error) {
	plaintext, err := s.readAll(ctx, tr, key)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(plaintext)) {
		return nil, nil
	}
	end := offset + int64(maxLen)
	if end > int64(len(plaintext)) {
		end = int64(len(plaintext))
	}
	return plaintext[offset:end], nil
}

// Size returns the plaintext length (requires a decrypt pass).
func (s *Store) Size(ctx context.Context, tr *trail.Trail, key string) (int64, error) {
	plaintext, err := s.readAll(ctx, tr, key)
	if err != nil {
		return 0, err
	}
	return int64(len(plaintext)), nil
}

// Clear truncates the string at key to empty.
func (s *Store) Clear(ctx context.Context, tr *trail.Trail, key string) error {
	return s.inner.Clear(ctx, tr, key)
}

// Delete removes the string at key entirely.
func (s *Store) Delete(ctx context.Context, tr *trail.Trail, key string) error {
	return s.inner.Delete(ctx, tr, key)
}

func (s *Store) readAll(ctx context.Context, tr *trail.Trail, key string) ([]byte, error) {
	size, err := s.inner.Size(ctx, tr, key)
	if err != nil {
		return nil, err
	}
	sealed, err := s.inner.Read(ctx, tr, key, 0, int(size))
	if err != nil {
		return nil, err
	}
	return s.unseal(key, sealed)
}

func (s *Store) seal(salt string, plaintext []byte) ([]byte, error) {
	derived, err := s.deriveKey([]byte(salt))
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, headerSize+len(ciphertext))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(ciphertext)))
	copy(out[4:headerSize], nonce)
	copy(out[headerSize:], ciphertext)
	return out, nil
}

func (s *Store) unseal(salt string, sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < headerSize {
		return nil, fmt.Errorf("sealedstrings: truncated header for key %s", salt)
	}
	ciphertextSize := binary.BigEndian.Uint32(sealed[0:4])
	nonce := sealed[4:headerSize]
	if headerSize+int(ciphertextSize) != len(sealed) {
		return nil, fmt.Errorf("sealedstrings: corrupt sealed length for key %s", salt)
	}
	ciphertext := sealed[headerSize:]

	derived, err := s.deriveKey([]byte(salt))
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("sealedstrings: decryption failed for key %s: %w", salt, err)
	}
	return plaintext, nil
}
