package session

import "sync"

// Registry tracks every active CallSession, keyed by call ID. The engine
// adds a session on answer/origination and removes it during cleanup.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*CallSession)}
}

// Add registers a session. It overwrites any prior session with the same
// call ID.
func (r *Registry) Add(s *CallSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallID] = s
}

// Get returns the session for callID, or nil if none is active.
func (r *Registry) Get(callID string) *CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callID]
}

// Remove deregisters a session.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Len returns the number of active calls, for the active_calls gauge.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot slice of every active session.
func (r *Registry) All() []*CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
