package router

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/livecorrect/pkg/core"
	"github.com/gabrielmiguelok/livecorrect/pkg/transport"
)

// LiveViewSession binds one websocket connection to its mounted component.
type LiveViewSession struct {
	ID       string
	SocketID string

	Component core.Component
	Socket    *core.Socket
	Transport transport.Transport

	Params  core.Params
	Session core.Session

	// JoinRef is the join reference of the channel, echoed on replies.
	JoinRef string
	Mounted bool

	// Version orders diffs on the client.
	Version uint64

	slotHashes map[string]uint64
	frameHash  uint64
	fullHash   uint64

	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewLiveViewSession creates a session for a socket.
func NewLiveViewSession(socketID string, comp core.Component, params core.Params, session core.Session) *LiveViewSession {
	return &LiveViewSession{
		ID:        uuid.NewString(),
		SocketID:  socketID,
		Component: comp,
		Params:    params,
		Session:   session,
	}
}

// SetMounted marks the component mounted.
func (s *LiveViewSession) SetMounted(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mounted = mounted
}

// IsMounted reports whether the component was mounted.
func (s *LiveViewSession) IsMounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Mounted
}

// SetJoinRef stores the join reference.
func (s *LiveViewSession) SetJoinRef(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JoinRef = ref
}

// GetJoinRef returns the join reference.
func (s *LiveViewSession) GetJoinRef() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.JoinRef
}

// LiveViewSessionManager tracks the active sessions.
type LiveViewSessionManager struct {
	sessions map[string]*LiveViewSession
	mu       sync.RWMutex
}

// NewLiveViewSessionManager creates an empty manager.
func NewLiveViewSessionManager() *LiveViewSessionManager {
	return &LiveViewSessionManager{sessions: make(map[string]*LiveViewSession)}
}

// Create creates and registers a session.
func (m *LiveViewSessionManager) Create(socketID string, comp core.Component, params core.Params, session core.Session) *LiveViewSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	lvSession := NewLiveViewSession(socketID, comp, params, session)
	m.sessions[lvSession.ID] = lvSession
	return lvSession
}

// Remove deletes a session.
func (m *LiveViewSessionManager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of active sessions. The health check reads it.
func (m *LiveViewSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns every session.
func (m *LiveViewSessionManager) All() []*LiveViewSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*LiveViewSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}
