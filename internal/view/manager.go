package view

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"alertgroups/internal/clock"
)

var (
	// ErrSessionNotFound indicates an unknown or evicted session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownSource indicates a source that is not configured.
	ErrUnknownSource = errors.New("unknown source")
)

// Manager owns live sessions and evicts idle ones.
type Manager struct {
	renderers map[string]Renderer
	clock     clock.Clock
	idle      time.Duration
	max       int
	observe   RegroupObserver

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session registry.
// Params: renderer per source, clock, idle timeout (0 disables), session cap (0 disables), and optional observer.
// Returns: empty manager.
func NewManager(renderers []Renderer, clk clock.Clock, idle time.Duration, max int, observe RegroupObserver) *Manager {
	byName := make(map[string]Renderer, len(renderers))
	for _, r := range renderers {
		byName[r.Source()] = r
	}
	return &Manager{
		renderers: byName,
		clock:     clk,
		idle:      idle,
		max:       max,
		observe:   observe,
		sessions:  make(map[string]*Session),
	}
}

// Renderer returns the renderer of one source for stateless views.
func (m *Manager) Renderer(source string) (Renderer, bool) {
	r, ok := m.renderers[source]
	return r, ok
}

// Create opens a new session with default grouping.
// Params: source name.
// Returns: session or ErrUnknownSource; the least recently used session is evicted at the cap.
func (m *Manager) Create(source string) (*Session, error) {
	renderer, ok := m.renderers[source]
	if !ok {
		return nil, ErrUnknownSource
	}
	session := newSession(ulid.Make().String(), renderer, m.clock, m.observe)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.max > 0 {
		for len(m.sessions) >= m.max {
			m.evictOldestLocked()
		}
	}
	m.sessions[session.ID()] = session
	return session, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete drops one session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle removes sessions unused for longer than the idle timeout.
// Params: none.
// Returns: number of removed sessions.
func (m *Manager) EvictIdle() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if session.LastAccess().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the least recently used session; caller holds m.mu.
func (m *Manager) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, session := range m.sessions {
		seen := session.LastAccess()
		if oldestID == "" || seen.Before(oldest) || (seen.Equal(oldest) && id < oldestID) {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
	}
}
