package contest

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry maps session keys to live sessions. Its lock only guards the map; a
// session's own state is guarded by the session lock, so work on different
// sessions never contends here for longer than a map lookup.
//
// Lock order: a session lock may be held while taking the registry lock, never
// the other way around.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	clock    clockwork.Clock
}

// NewRegistry creates an empty registry
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		clock:    clock,
	}
}

// GetOrCreate returns the session for key, creating it on first registration
func (r *Registry) GetOrCreate(key, ownerID string, timeLimit time.Duration) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return sess, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[key]; ok {
		return sess, false
	}

	sess = newSession(key, ownerID, timeLimit, r.clock.Now())
	r.sessions[key] = sess

	log.Info().
		Str("session_id", key).
		Str("owner_id", ownerID).
		Dur("time_limit", timeLimit).
		Msg("session created")
	return sess, true
}

// Get returns the session for key
func (r *Registry) Get(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[key]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", key, ErrSessionNotFound)
	}
	return sess, nil
}

// remove deletes key only if it still maps to sess
func (r *Registry) remove(key string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[key]; ok && current == sess {
		delete(r.sessions, key)
		return true
	}
	return false
}

// List returns a snapshot of all sessions
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
