//go:build !wasm

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/praetorian-inc/tmscan/pkg/types"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
// ":memory:" opens a private in-memory database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// openDB opens path and ensures the schema exists.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

// AddSession stores a session record.
func (s *SQLiteStore) AddSession(sess *types.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO sessions (id, source, pattern_set, fingerprint, text_hash, text_length, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.Source,
		sess.PatternSet,
		formatHash(sess.Fingerprint),
		formatHash(sess.TextHash),
		sess.TextLength,
		sess.TokenCount,
		sess.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// AddTokens stores tokens for a session in one transaction.
func (s *SQLiteStore) AddTokens(sessionID string, tokens []*types.Token) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO tokens (session_id, seq, start_offset, end_offset, pattern_index, tag, captures_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, tok := range tokens {
		var captures any
		if len(tok.Captures) > 0 {
			data, err := json.Marshal(tok.Captures)
			if err != nil {
				return fmt.Errorf("marshaling captures: %w", err)
			}
			captures = string(data)
		}
		if _, err := stmt.Exec(sessionID, tok.Seq, tok.Start, tok.End, tok.PatternIndex, tok.Tag, captures); err != nil {
			return fmt.Errorf("inserting token %d: %w", tok.Seq, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE sessions SET token_count = (SELECT COUNT(*) FROM tokens WHERE session_id = ?)
		WHERE id = ?
	`, sessionID, sessionID)
	if err != nil {
		return fmt.Errorf("updating token count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const sessionColumns = "id, source, pattern_set, fingerprint, text_hash, text_length, token_count, created_at"

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(id string) (*types.Session, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// GetSessions retrieves all sessions ordered by creation time, then ID.
func (s *SQLiteStore) GetSessions() ([]*types.Session, error) {
	rows, err := s.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetTokens retrieves the tokens of a session in sequence order.
func (s *SQLiteStore) GetTokens(sessionID string) ([]*types.Token, error) {
	rows, err := s.db.Query(`
		SELECT seq, start_offset, end_offset, pattern_index, tag, captures_json
		FROM tokens WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*types.Token
	for rows.Next() {
		var tok types.Token
		var captures sql.NullString
		if err := rows.Scan(&tok.Seq, &tok.Start, &tok.End, &tok.PatternIndex, &tok.Tag, &captures); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		if captures.Valid && captures.String != "" {
			if err := json.Unmarshal([]byte(captures.String), &tok.Captures); err != nil {
				return nil, fmt.Errorf("unmarshaling captures: %w", err)
			}
		}
		tokens = append(tokens, &tok)
	}
	return tokens, rows.Err()
}

// SessionExists checks if a session has already been recorded.
func (s *SQLiteStore) SessionExists(id string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking session: %w", err)
	}
	return count > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var fingerprint, textHash string
	var createdAt int64
	err := row.Scan(
		&sess.ID,
		&sess.Source,
		&sess.PatternSet,
		&fingerprint,
		&textHash,
		&sess.TextLength,
		&sess.TokenCount,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if sess.Fingerprint, err = parseHash(fingerprint); err != nil {
		return nil, err
	}
	if sess.TextHash, err = parseHash(textHash); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	return &sess, nil
}

// Hashes are stored as hex text since SQLite integers are signed.
func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func parseHash(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	return h, nil
}
