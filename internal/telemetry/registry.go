package telemetry

import (
	"context"
	"sync"
)

// Registry tracks the active session monitors. Each session's state is fully
// isolated; the registry only provides lookup and lifecycle fan-out.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Monitor
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Monitor)}
}

// Start registers and starts a monitor. Returns false if the session ID is
// already active.
func (r *Registry) Start(ctx context.Context, m *Monitor) bool {
	r.mu.Lock()
	if _, exists := r.sessions[m.SessionID]; exists {
		r.mu.Unlock()
		return false
	}
	r.sessions[m.SessionID] = m
	r.mu.Unlock()

	m.Start(ctx)
	return true
}

// Get returns the monitor for a session, if active.
func (r *Registry) Get(sessionID string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[sessionID]
	return m, ok
}

// End stops and removes a session's monitor. Returns false if the session was
// not active.
func (r *Registry) End(sessionID string) bool {
	r.mu.Lock()
	m, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	m.Stop()
	return true
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every active monitor.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	monitors := make([]*Monitor, 0, len(r.sessions))
	for id, m := range r.sessions {
		monitors = append(monitors, m)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}
