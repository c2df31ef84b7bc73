// Package session leases browser execution contexts from a capacity-bounded pool backed
// either by a remote session provider or by a shared local browser.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
)

var (
	// ErrSessionNotFound is returned when a lease handle is not in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("session pool closed")

	// ErrRateLimited is returned when the provider keeps rate limiting session creation.
	ErrRateLimited = errors.New("session provider rate limit exhausted")

	// ErrProviderNotReady is returned while the provider has not finished starting a session.
	ErrProviderNotReady = errors.New("provider session not ready")
)

// BrowserSession is a leased browser context. It is owned by one agent loop until released.
type BrowserSession struct {
	ID       uuid.UUID
	Viewport Viewport
	Page     browser.Page
	// RodPage is the raw page for CDP consumers such as the screencast source.
	RodPage *rod.Page

	ProviderSessionID string
	ConnectURL        string
	LiveViewURL       string

	CreatedAt time.Time

	mu       sync.Mutex
	released bool
	// teardown holds backend resources beyond the page (browser connection, incognito context).
	teardown func() error
}

// markReleased flips the session to released and reports whether this call did it.
func (s *BrowserSession) markReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.released = true
	return true
}

// Released reports whether the session was returned to the pool.
func (s *BrowserSession) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Store is the registry of leased sessions keyed by lease handle.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*BrowserSession
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*BrowserSession),
	}
}

// Set stores a session in the registry.
func (s *Store) Set(session *BrowserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// Get retrieves a session by handle.
func (s *Store) Get(id uuid.UUID) (*BrowserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session from the registry.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns the registered sessions.
func (s *Store) List() []*BrowserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BrowserSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// OlderThan returns sessions leased for longer than age.
func (s *Store) OlderThan(age time.Duration) []*BrowserSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*BrowserSession
	cutoff := time.Now().Add(-age)
	for _, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			out = append(out, session)
		}
	}
	return out
}
