package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

// Store keeps key-value pairs in memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	values map[string][]byte
	mu     sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Get returns the value stored under key, or storage.ErrNotFound
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Copy so callers can't mutate stored bytes
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// DeletePrefix removes every key that starts with prefix
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			delete(s.values, key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store
func (s *Store) Close() error {
	return nil
}

// Len reports the number of stored keys (test helper)
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
