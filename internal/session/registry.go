package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"custody-workbench/internal/clock"
)

// Registry tracks open sessions.
type Registry struct {
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:    clk,
		sessions: make(map[string]*Session),
	}
}

// Open creates and registers a new session.
func (r *Registry) Open(profile string) *Session {
	s := New(uuid.NewString(), profile, r.clock.Now())

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	return s
}

// Get returns an open session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears down and forgets a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// CloseAll tears down every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// IDs returns open session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
