package session

import (
	"sync"
	"time"
)

// entry is the process-lifetime session cache for one instance. verifiedAt
// gates the verify-skip TTL.
type entry struct {
	token      string
	verifiedAt time.Time
}

// Store holds per-instance session state for the lifetime of the process.
// It is explicit state passed by reference, not a package-level global, so
// tests and future multi-store setups stay straightforward.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	// rejected remembers the last token the backend turned away per
	// instance, so resolution goes straight to login instead of re-verifying
	// a token that just failed.
	rejected map[string]string
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]entry),
		rejected: make(map[string]string),
	}
}

// Get returns the cached token and verification time for an instance.
func (s *Store) Get(instanceID string) (token string, verifiedAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[instanceID]
	return e.token, e.verifiedAt, ok
}

// Set records a freshly verified token for an instance.
func (s *Store) Set(instanceID, token string, verifiedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[instanceID] = entry{token: token, verifiedAt: verifiedAt}
	delete(s.rejected, instanceID)
}

// Invalidate drops the cached session for an instance, forcing the next
// resolution to re-verify or re-login.
func (s *Store) Invalidate(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, instanceID)
}

// MarkRejected drops the cached session and remembers its token as turned
// away by the backend. Only callers that saw a real auth rejection should
// use this; a plain Invalidate keeps the token eligible for re-verify.
func (s *Store) MarkRejected(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[instanceID]; ok && e.token != "" {
		s.rejected[instanceID] = e.token
	}
	delete(s.entries, instanceID)
}

// Rejected returns the last token the backend turned away for an instance,
// if any.
func (s *Store) Rejected(instanceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rejected[instanceID]
}
