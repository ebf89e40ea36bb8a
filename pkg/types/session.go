package types

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Session records one tokenization run over a text.
type Session struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`                // file path, or "-" for stdin
	PatternSet  string    `json:"pattern_set,omitempty"` // empty for ad hoc patterns
	Fingerprint uint64    `json:"fingerprint"`
	TextHash    uint64    `json:"text_hash"`
	TextLength  int       `json:"text_length"` // in characters
	TokenCount  int       `json:"token_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Token is one match recorded in a session, numbered from 0 in text order.
type Token struct {
	Seq          int            `json:"seq"`
	Start        int            `json:"start"`
	End          int            `json:"end"`
	PatternIndex int            `json:"pattern_index"`
	Tag          string         `json:"tag,omitempty"`
	Captures     []CaptureRange `json:"captures,omitempty"`
}

// HashText returns the content hash used in session identifiers.
func HashText(text string) uint64 {
	return xxhash.Sum64String(text)
}

// SessionID derives a session identifier from a pattern set fingerprint and
// the scanned text. The same patterns over the same text give the same ID.
func SessionID(fingerprint uint64, text string) string {
	return fmt.Sprintf("%016x%016x", fingerprint, HashText(text))
}

// TokenFromMatch converts a successful match into a token.
func TokenFromMatch(seq int, m MatchResult) *Token {
	return &Token{
		Seq:          seq,
		Start:        m.Start,
		End:          m.End,
		PatternIndex: m.PatternIndex,
		Tag:          m.Tag,
		Captures:     m.Captures,
	}
}
