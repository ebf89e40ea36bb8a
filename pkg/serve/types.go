package serve

import (
	"encoding/json"

	"github.com/praetorian-inc/tmscan/pkg/types"
)

// Request represents an incoming NDJSON request
type Request struct {
	Type    string          `json:"type"` // "create_scanner" | "find_next_match" | "destroy_scanner" | "stats" | "close"
	Payload json.RawMessage `json:"payload"`
}

// CreateScannerPayload is the payload for "create_scanner" requests.
// Patterns and PatternSet (a built-in set ID) are alternatives; Patterns wins
// when both are given.
type CreateScannerPayload struct {
	Patterns     []types.PatternDef `json:"patterns"`
	PatternSet   string             `json:"pattern_set,omitempty"`
	MaxCacheSize int                `json:"max_cache_size"`
}

// FindNextMatchPayload is the payload for "find_next_match" requests
type FindNextMatchPayload struct {
	ScannerID     uint64 `json:"scanner_id"`
	Text          string `json:"text"`
	StartPosition int    `json:"start_position"`
}

// DestroyScannerPayload is the payload for "destroy_scanner" requests
type DestroyScannerPayload struct {
	ScannerID uint64 `json:"scanner_id"`
}

// ScannerData is the data field for "create_scanner" and "destroy_scanner" responses
type ScannerData struct {
	ScannerID uint64 `json:"scanner_id"`
}

// Response represents an outgoing NDJSON response
type Response struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"` // request type, "ready" or "decode"
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"` // types.Code* on failure
}

// ReadyData is the data field for "ready" responses
type ReadyData struct {
	Version     string   `json:"version"`
	PatternSets []string `json:"pattern_sets,omitempty"`
}
