package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "lotpass_session"

// Session represents a logged-in user session.
type Session struct {
	ID         string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SessionStore manages login sessions in memory.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a session store.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// Timeout returns the configured session lifetime.
func (s *SessionStore) Timeout() time.Duration {
	return s.timeout
}

// Create generates a new session bound to an identity.
func (s *SessionStore) Create(ctx context.Context, identityID string) (*Session, error) {
	// Generate random session ID (32 bytes = 64 hex chars)
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	id := hex.EncodeToString(b)

	now := time.Now()
	session := &Session{
		ID:         id,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.timeout),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a session by ID, treating expired sessions as absent.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Check expiration
	if time.Now().After(session.ExpiresAt) {
		s.Delete(ctx, id)
		return nil, false
	}

	return session, true
}

// Extend slides the session's expiry to now + timeout. Issuing a token
// keeps the user's dashboard alive for the token's lifetime.
func (s *SessionStore) Extend(ctx context.Context, id string) {
	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		session.ExpiresAt = time.Now().Add(s.timeout)
	}
	s.mu.Unlock()
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cleanup removes expired sessions (call periodically).
func (s *SessionStore) Cleanup(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
