// Package session hosts one screen instance per open list-screen session and
// expires sessions that sit idle.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/opsdesk/internal/screen"
	"github.com/pitabwire/opsdesk/model"
)

// Session is one open list screen owned by a tenant.
type Session struct {
	ID        string
	TenantID  string
	SubjectID string
	ScreenID  string
	Screen    *screen.Screen
	CreatedAt time.Time
	// LastAccess is updated by the store on every successful Get.
	LastAccess time.Time
}

// Store persists open sessions.
type Store interface {
	// Create adds s unless the store already holds limit sessions. A limit
	// of zero or less means unbounded.
	Create(ctx context.Context, s *Session, limit int) error
	// Get returns the session and marks it accessed at now.
	Get(ctx context.Context, tenantID, sessionID string, now time.Time) (*Session, error)
	Delete(ctx context.Context, tenantID, sessionID string) (*Session, error)
	// TakeExpired removes and returns sessions last accessed before cutoff.
	TakeExpired(ctx context.Context, cutoff time.Time) ([]*Session, error)
	// TakeAll removes and returns every session.
	TakeAll(ctx context.Context) []*Session
	Len() int
}

// MemoryStore is an in-memory Store. Sessions hold live screen instances, so
// they never leave the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Create adds a new session. The limit is checked under the same lock as
// the insert.
func (m *MemoryStore) Create(_ context.Context, s *Session, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return errSessionExists(s.ID)
	}
	if limit > 0 && len(m.sessions) >= limit {
		return model.NewSessionLimitError(limit)
	}
	m.sessions[s.ID] = s
	return nil
}

// Get retrieves a session by ID, scoped to tenant.
func (m *MemoryStore) Get(_ context.Context, tenantID, sessionID string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists || s.TenantID != tenantID {
		return nil, errSessionNotFound(sessionID)
	}
	s.LastAccess = now
	return s, nil
}

// Delete removes a session, scoped to tenant, and returns it.
func (m *MemoryStore) Delete(_ context.Context, tenantID, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists || s.TenantID != tenantID {
		return nil, errSessionNotFound(sessionID)
	}
	delete(m.sessions, sessionID)
	return s, nil
}

// TakeExpired removes sessions idle since before cutoff, oldest first.
func (m *MemoryStore) TakeExpired(_ context.Context, cutoff time.Time) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Session
	for id, s := range m.sessions {
		if s.LastAccess.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].LastAccess.Before(expired[j].LastAccess)
	})
	return expired, nil
}

// TakeAll empties the store.
func (m *MemoryStore) TakeAll(_ context.Context) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	return all
}

// Len returns the number of open sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
