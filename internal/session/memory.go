package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and one-shot CLI runs.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{vals: make(map[string]string)}
}

func (m *MemoryStore) Save(_ context.Context, token, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[KeyToken] = token
	m.vals[KeyUsername] = username
	m.vals[KeyLoggedIn] = "true"
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, KeyToken)
	delete(m.vals, KeyUsername)
	delete(m.vals, KeyLoggedIn)
	return nil
}

func (m *MemoryStore) IsLoggedIn(ctx context.Context) bool {
	_, ok := m.Token(ctx)
	return ok
}

func (m *MemoryStore) Token(_ context.Context) (string, bool) {
	return m.get(KeyToken)
}

func (m *MemoryStore) Username(_ context.Context) (string, bool) {
	return m.get(KeyUsername)
}

func (m *MemoryStore) VisitedBefore(_ context.Context) bool {
	v, ok := m.get(KeyVisitedBefore)
	return ok && v == "true"
}

func (m *MemoryStore) MarkVisited(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[KeyVisitedBefore] = "true"
	return nil
}

func (m *MemoryStore) ForgetVisit(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, KeyVisitedBefore)
	return nil
}

// SetFlag writes the raw logged-in flag without touching the token. It
// exists to reproduce stores written by clients that set the two independently.
func (m *MemoryStore) SetFlag(loggedIn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loggedIn {
		m.vals[KeyLoggedIn] = "true"
		return
	}
	delete(m.vals, KeyLoggedIn)
}

func (m *MemoryStore) loggedInFlag(_ context.Context) (bool, error) {
	v, ok := m.get(KeyLoggedIn)
	return ok && v == "true", nil
}

func (m *MemoryStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
