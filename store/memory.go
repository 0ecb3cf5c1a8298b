package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/aluiziolira/isbn-finder/models"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	stamper

	mu       sync.RWMutex
	sessions map[string]models.SearchSession
	byPublic map[string]string
	results  map[string][]models.SearchResultRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stamper:  defaultStamper(),
		sessions: make(map[string]models.SearchSession),
		byPublic: make(map[string]string),
		results:  make(map[string][]models.SearchResultRecord),
	}
}

// CreateSession stores a new session under a fresh internal id.
func (m *MemoryStore) CreateSession(ctx context.Context, ns models.NewSession) (models.SearchSession, error) {
	if err := ns.Validate(); err != nil {
		return models.SearchSession{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byPublic[ns.SessionID]; exists {
		return models.SearchSession{}, fmt.Errorf("%w: %s", ErrDuplicateSession, ns.SessionID)
	}
	session := ns.Build(m.newID(), m.now())
	m.sessions[session.ID] = session
	m.byPublic[session.SessionID] = session.ID
	return session, nil
}

// GetSession returns a copy of the session with the given internal id.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (models.SearchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.SearchSession{}, ErrSessionNotFound
	}
	return session, nil
}

// GetSessionByPublicID returns a copy of the session with the given public id.
func (m *MemoryStore) GetSessionByPublicID(ctx context.Context, sessionID string) (models.SearchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPublic[sessionID]
	if !ok {
		return models.SearchSession{}, ErrSessionNotFound
	}
	return m.sessions[id], nil
}

// UpdateSession applies the set fields of update to the stored session.
func (m *MemoryStore) UpdateSession(ctx context.Context, id string, update models.SessionUpdate) (models.SearchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.SearchSession{}, ErrSessionNotFound
	}
	if err := models.ApplyUpdate(&session, update, m.now()); err != nil {
		return models.SearchSession{}, err
	}
	m.sessions[id] = session
	return session, nil
}

// AppendResult stores rec after the existing results of its session.
func (m *MemoryStore) AppendResult(ctx context.Context, rec models.SearchResultRecord) (models.SearchResultRecord, error) {
	if err := validateResult(rec); err != nil {
		return models.SearchResultRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byPublic[rec.SessionID]; !ok {
		return models.SearchResultRecord{}, ErrSessionNotFound
	}
	rec = m.stampResult(rec)
	m.results[rec.SessionID] = append(m.results[rec.SessionID], rec)
	return rec, nil
}

// ListResultsByPublicID returns the session results in insertion order.
func (m *MemoryStore) ListResultsByPublicID(ctx context.Context, sessionID string) ([]models.SearchResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.results[sessionID]
	out := make([]models.SearchResultRecord, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
