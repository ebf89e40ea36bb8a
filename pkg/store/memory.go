package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/praetorian-inc/tmscan/pkg/types"
)

// MemoryStore implements Store using in-memory data structures.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	tokens   map[string]map[int]*types.Token // session ID -> seq -> token
}

// NewMemory creates a new in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
		tokens:   make(map[string]map[int]*types.Token),
	}
}

// AddSession stores a session record.
func (m *MemoryStore) AddSession(s *types.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return nil
	}
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

// AddTokens stores tokens for a session.
func (m *MemoryStore) AddTokens(sessionID string, tokens []*types.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	bySeq := m.tokens[sessionID]
	if bySeq == nil {
		bySeq = make(map[int]*types.Token)
		m.tokens[sessionID] = bySeq
	}
	for _, tok := range tokens {
		if _, exists := bySeq[tok.Seq]; exists {
			continue
		}
		stored := *tok
		bySeq[tok.Seq] = &stored
	}
	session.TokenCount = len(bySeq)
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	out := *s
	return &out, nil
}

// GetSessions retrieves all sessions ordered by creation time, then ID.
func (m *MemoryStore) GetSessions() ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out := *s
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetTokens retrieves the tokens of a session in sequence order.
func (m *MemoryStore) GetTokens(sessionID string) ([]*types.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySeq := m.tokens[sessionID]
	result := make([]*types.Token, 0, len(bySeq))
	for _, tok := range bySeq {
		out := *tok
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// SessionExists checks if a session has already been recorded.
func (m *MemoryStore) SessionExists(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.sessions[id]
	return exists, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
