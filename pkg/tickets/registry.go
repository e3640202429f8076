package tickets

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Registry stores SSO sessions.
//
// Lookup returns ErrSessionNotFound when the ID is unknown; any other error
// means the registry itself could not be reached. Delete of an unknown ID is
// not an error.
type Registry interface {
	Lookup(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Add(ctx context.Context, session *Session) error
	Expired(ctx context.Context, now time.Time) ([]string, error)
}

// MemoryRegistry is a process-local Registry. Lookups return the stored
// pointer, so logout state on SessionService records is shared by every caller.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*Session)}
}

// Lookup returns the session with the given ID
func (r *MemoryRegistry) Lookup(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes the session with the given ID
func (r *MemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// Add stores or replaces a session
func (r *MemoryRegistry) Add(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

// Expired lists the IDs of sessions expired at now, sorted
func (r *MemoryRegistry) Expired(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Len returns the number of stored sessions
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
