package session

import "sync"

// Hub tracks live sessions keyed by project ID.
type Hub struct {
	mu       sync.RWMutex
	deps     Deps
	sessions map[string]*Session
}

// NewHub constructs a hub whose sessions share the given dependencies.
func NewHub(deps Deps) *Hub {
	return &Hub{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a project, creating an idle one
// on first use.
func (h *Hub) GetOrCreate(projectID string) *Session {
	h.mu.RLock()
	s, ok := h.sessions[projectID]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[projectID]; ok {
		return s
	}
	s = New(projectID, h.deps)
	h.sessions[projectID] = s
	return s
}

// Get returns the live session for a project, if any.
func (h *Hub) Get(projectID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[projectID]
	return s, ok
}

// Remove drops the session for a project after resetting it.
func (h *Hub) Remove(projectID string) {
	h.mu.Lock()
	s, ok := h.sessions[projectID]
	delete(h.sessions, projectID)
	h.mu.Unlock()
	if ok {
		s.Reset()
	}
}
