// Package store persists tokenization sessions.
package store

import (
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// Store provides persistence for tokenization sessions.
// This interface abstracts the underlying storage implementation,
// allowing for different backends (SQLite, in-memory).
type Store interface {
	// AddSession stores a session record. Adding an existing ID is a no-op.
	AddSession(s *types.Session) error

	// AddTokens stores tokens for a session and updates its token count.
	// Tokens whose sequence number is already stored are ignored.
	AddTokens(sessionID string, tokens []*types.Token) error

	// GetSession retrieves a session by ID.
	GetSession(id string) (*types.Session, error)

	// GetSessions retrieves all sessions ordered by creation time.
	GetSessions() ([]*types.Session, error)

	// GetTokens retrieves the tokens of a session in sequence order.
	GetTokens(sessionID string) ([]*types.Token, error)

	// SessionExists checks if a session has already been recorded.
	SessionExists(id string) (bool, error)

	// Close releases the store.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for an in-memory store.
	Path string
}
