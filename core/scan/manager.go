package scan

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("scan session not found")

	nowFunc = time.Now // mockable
)

// Manager keeps the open scan sessions. Sessions untouched for longer than ttl are cancelled and dropped.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	resolve  Resolver
	ttl      time.Duration
}

func NewManager(resolve Resolver, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		resolve:  resolve,
		ttl:      ttl,
	}
}

// Open starts a session for date, waiting for camera permission.
func (m *Manager) Open(date string) *Session {
	s := NewSession(uuid.New().String(), date, m.resolve)
	_, _ = s.Open()

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Prune drops the sessions not updated within ttl, cancelling the live ones. It returns how many were dropped.
// Sessions are inspected without holding the manager lock, so a session busy resolving a scan
// delays Prune only.
func (m *Manager) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	deadline := nowFunc().UTC().Add(-m.ttl)

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var n int
	for _, s := range sessions {
		if !s.View().UpdatedAt.Before(deadline) || !m.drop(s) {
			continue
		}
		_, _ = s.Cancel()
		n++
	}
	return n
}

// drop removes s unless it was removed or replaced meanwhile.
func (m *Manager) drop(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ID()] != s {
		return false
	}
	delete(m.sessions, s.ID())
	return true
}
