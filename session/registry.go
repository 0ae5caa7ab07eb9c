package session

import (
	"sync"

	"vona/log"
)

// Registry is a process-wide guard against duplicate concurrent sessions for
// the same user. UI layers tear down and rebuild quickly; without the
// registry a remount would open a second channel while the first still holds
// the microphone and the socket.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	session Session
	refs    int
}

var defaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Default is the shared process-wide registry.
func Default() *Registry { return defaultRegistry }

// Acquire returns the live session for the user, creating one via factory
// when none exists or the existing one is no longer usable. A session in
// Connecting or Open is reused, never replaced.
func (r *Registry) Acquire(userID string, factory func() Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		switch e.session.State() {
		case StateConnecting, StateOpen:
			e.refs++
			log.Infof("registry: reusing live session for %s (refs=%d)", userID, e.refs)
			return e.session
		}
		// Dead entry: replace it.
		delete(r.entries, userID)
	}

	s := factory()
	r.entries[userID] = &registryEntry{session: s, refs: 1}
	return s
}

// Release drops one reference; the last reference stops the session and
// removes the entry. Releasing an unknown user is a no-op.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	last := e.refs <= 0
	if last {
		delete(r.entries, userID)
	}
	s := e.session
	r.mu.Unlock()

	if last {
		s.Stop()
	}
}

// Len reports how many users currently hold a session.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
