package types

// CaptureRange is the [Start, End) character span of a capture group.
// Both offsets are -1 when the group did not participate in the match.
type CaptureRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the length of the range, or 0 for a group that did not participate.
func (c CaptureRange) Len() int {
	if c.Start < 0 || c.End < c.Start {
		return 0
	}
	return c.End - c.Start
}

// Participated reports whether the group took part in the match.
func (c CaptureRange) Participated() bool {
	return c.Start >= 0
}

// MatchResult is the outcome of a single find-next-match call.
// Offsets are character (rune) offsets into the scanned text.
type MatchResult struct {
	Matched      bool           `json:"matched"`
	Start        int            `json:"start"`
	End          int            `json:"end"`
	PatternIndex int            `json:"pattern_index"`
	Tag          string         `json:"tag,omitempty"`
	Captures     []CaptureRange `json:"captures,omitempty"` // groups 1..n
}

// NoMatch is the result returned when no pattern matches.
func NoMatch() MatchResult {
	return MatchResult{Matched: false, Start: -1, End: -1, PatternIndex: -1}
}

// Len returns the length of the whole match.
func (m MatchResult) Len() int {
	if !m.Matched {
		return 0
	}
	return m.End - m.Start
}
