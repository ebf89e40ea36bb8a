//go:build !wasm

package store

import (
	"database/sql"
	"fmt"
)

// MergeConfig configures the merge operation.
type MergeConfig struct {
	// SourcePaths are the database files to merge from.
	SourcePaths []string
	// DestPath is the destination database file.
	DestPath string
}

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	SessionsMerged   int
	TokensMerged     int
	SourcesProcessed int
}

// Merge combines multiple session databases into one.
// Sessions with the same ID are stored once via INSERT OR IGNORE.
func Merge(cfg MergeConfig) (*MergeStats, error) {
	if len(cfg.SourcePaths) == 0 {
		return nil, fmt.Errorf("no source databases specified")
	}
	if cfg.DestPath == "" {
		return nil, fmt.Errorf("destination path is required")
	}

	destDB, err := openDB(cfg.DestPath)
	if err != nil {
		return nil, fmt.Errorf("opening destination database: %w", err)
	}
	defer destDB.Close()

	stats := &MergeStats{}
	for _, sourcePath := range cfg.SourcePaths {
		sourceStats, err := mergeFrom(destDB, sourcePath)
		if err != nil {
			return stats, fmt.Errorf("merging from %s: %w", sourcePath, err)
		}
		stats.SessionsMerged += sourceStats.SessionsMerged
		stats.TokensMerged += sourceStats.TokensMerged
		stats.SourcesProcessed++
	}

	return stats, nil
}

// mergeFrom copies data from a source database to the destination.
func mergeFrom(destDB *sql.DB, sourcePath string) (*MergeStats, error) {
	sourceDB, err := openDB(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source database: %w", err)
	}
	defer sourceDB.Close()

	tx, err := destDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stats := &MergeStats{}

	stats.SessionsMerged, err = mergeSessions(tx, sourceDB)
	if err != nil {
		return nil, fmt.Errorf("merging sessions: %w", err)
	}

	stats.TokensMerged, err = mergeTokens(tx, sourceDB)
	if err != nil {
		return nil, fmt.Errorf("merging tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return stats, nil
}

func mergeSessions(tx *sql.Tx, sourceDB *sql.DB) (int, error) {
	rows, err := sourceDB.Query("SELECT " + sessionColumns + " FROM sessions")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, source, patternSet, fingerprint, textHash string
		var textLength, tokenCount int
		var createdAt int64
		if err := rows.Scan(&id, &source, &patternSet, &fingerprint, &textHash, &textLength, &tokenCount, &createdAt); err != nil {
			return count, err
		}

		result, err := tx.Exec(`
			INSERT OR IGNORE INTO sessions (id, source, pattern_set, fingerprint, text_hash, text_length, token_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, source, patternSet, fingerprint, textHash, textLength, tokenCount, createdAt)
		if err != nil {
			return count, err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			count++
		}
	}

	return count, rows.Err()
}

func mergeTokens(tx *sql.Tx, sourceDB *sql.DB) (int, error) {
	rows, err := sourceDB.Query(`
		SELECT session_id, seq, start_offset, end_offset, pattern_index, tag, captures_json
		FROM tokens
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var sessionID, tag string
		var seq, start, end, patternIndex int
		var captures sql.NullString
		if err := rows.Scan(&sessionID, &seq, &start, &end, &patternIndex, &tag, &captures); err != nil {
			return count, err
		}

		result, err := tx.Exec(`
			INSERT OR IGNORE INTO tokens (session_id, seq, start_offset, end_offset, pattern_index, tag, captures_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sessionID, seq, start, end, patternIndex, tag, captures)
		if err != nil {
			return count, err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			count++
		}
	}

	return count, rows.Err()
}
