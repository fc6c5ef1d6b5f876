// Package secure wraps a storage.Store so values are sealed with
// XChaCha20-Poly1305 before they reach the backend. This is the secret
// trust tier: credentials and tokens live here, everything else stays in
// the plain tier.
package secure

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

// Store seals values with an AEAD cipher before delegating to the inner store.
// The key is bound to the stored key via associated data, so a value copied
// from one key to another fails to decrypt.
type Store struct {
	inner storage.Store
	aead  cipher.AEAD
}

// Wrap returns a secret-tier view over inner. The key material can be any
// length; a 32-byte AEAD key is derived from it with HKDF-SHA256.
func Wrap(inner storage.Store, key []byte) (*Store, error) {
	hk := hkdf.New(sha256.New, key, nil, []byte("pocketumami/secret-tier"))
	aeadKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hk, aeadKey); err != nil {
		return nil, fmt.Errorf("failed to derive secret-tier key: %w", err)
	}

	// XChaCha20-Poly1305 so random nonces are safe
	aead, err := chacha20poly1305.NewX(aeadKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AEAD: %w", err)
	}

	return &Store{inner: inner, aead: aead}, nil
}

// Get reads and unseals the value stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("sealed value under %q too short: %d bytes", key, len(sealed))
	}

	nonce, ciphertext := sealed[:ns], sealed[ns:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to unseal value under %q: %w", key, err)
	}
	return plaintext, nil
}

// Set seals value and stores it under key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.inner.Set(ctx, key, sealed)
}

// Delete removes key from the inner store
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// DeletePrefix removes every key that starts with prefix
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	return s.inner.DeletePrefix(ctx, prefix)
}

// Close is a no-op; the inner store owns its lifecycle
func (s *Store) Close() error {
	return nil
}
