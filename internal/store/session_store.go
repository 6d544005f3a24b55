// Package store holds the ephemeral verification session storage. Sessions
// are keyed by their opaque token and disappear on success, exhaustion or
// expiry; nothing here is durable.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/cert-reminder-api/internal/models"
)

// SessionStore abstracts the keyed session storage so a multi-instance
// deployment can swap the in-memory map for Redis.
type SessionStore interface {
	Put(ctx context.Context, session *models.VerificationSession) error
	// Get returns nil, nil when the token is unknown.
	Get(ctx context.Context, token string) (*models.VerificationSession, error)
	Delete(ctx context.Context, token string) error
	// SweepExpired removes sessions older than the TTL and returns how many
	// were dropped. Backends with server-side expiry may report zero.
	SweepExpired(ctx context.Context, ttl time.Duration, now time.Time) (int, error)
}

// MemoryStore is the single-process default backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.VerificationSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.VerificationSession)}
}

// Put stores a copy of the session.
func (s *MemoryStore) Put(_ context.Context, session *models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = *session
	return nil
}

// Get returns a copy so callers cannot mutate stored state without Put.
func (s *MemoryStore) Get(_ context.Context, token string) (*models.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := session
	return &cp, nil
}

// Delete removes the session if present.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// SweepExpired drops every session past its TTL. Runs under the write lock
// so a concurrent verify cannot observe a half-removed session.
func (s *MemoryStore) SweepExpired(_ context.Context, ttl time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if session.Expired(ttl, now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live sessions, used by the metrics gauge.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
