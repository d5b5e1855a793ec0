// Package session holds the per-operator context shared by the quote,
// ordering and tracking components.
package session

import (
	"errors"
	"sync"
	"time"

	"custody-workbench/internal/domain"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrClosed is returned when attaching to a session that was torn down.
	ErrClosed = errors.New("session closed")
)

// Session is the explicit session context. Quotes and orders created through
// a session belong to it and are never shared with another session.
type Session struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	profile string
	quote   *domain.Quote
	closers []func()
	closed  bool
}

// New creates a session.
func New(id, profile string, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		profile:   profile,
		createdAt: createdAt,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Profile returns the active profile.
func (s *Session) Profile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile replaces the active profile.
func (s *Session) SetProfile(profile string) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
}

// ActiveQuote returns a copy of the active quote, or nil.
func (s *Session) ActiveQuote() *domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil {
		return nil
	}
	q := *s.quote
	return &q
}

// ReplaceQuote sets the active quote. nil clears it.
func (s *Session) ReplaceQuote(q *domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == nil {
		s.quote = nil
		return
	}
	cp := *q
	s.quote = &cp
}

// OnClose registers fn to run at teardown.
func (s *Session) OnClose(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closers = append(s.closers, fn)
	return nil
}

// Closed reports whether the session was torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down, running closers in reverse registration order.
// Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.quote = nil
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
