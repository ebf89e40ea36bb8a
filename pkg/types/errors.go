package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is returned when a pattern definition cannot be compiled.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidRange is returned for a negative start position.
	ErrInvalidRange = errors.New("invalid range")

	// ErrNotFound is returned for an unknown, destroyed or evicted scanner ID.
	ErrNotFound = errors.New("scanner not found")

	// ErrInvalidCacheSize is returned when a cache budget is below 1.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrMatchTimeout is returned when a regex exceeds its match timeout.
	ErrMatchTimeout = errors.New("match timeout")
)

// PatternError reports which definition in a pattern set failed to compile.
type PatternError struct {
	Index  int
	Source string
	Err    error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern %d (%q): %v", e.Index, e.Source, e.Err)
}

// Unwrap returns the underlying compile error.
func (e *PatternError) Unwrap() error {
	return e.Err
}

// Is makes every PatternError match ErrInvalidPattern.
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// Error codes used on the wire.
const (
	CodeInvalidPattern   = "INVALID_PATTERN"
	CodeInvalidRange     = "INVALID_RANGE"
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidCacheSize = "INVALID_CACHE_SIZE"
	CodeMatchTimeout     = "MATCH_TIMEOUT"
	CodeBadRequest       = "BAD_REQUEST"
)

// ErrorCode maps an error to its wire code. Unknown errors map to CodeBadRequest.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPattern):
		return CodeInvalidPattern
	case errors.Is(err, ErrInvalidRange):
		return CodeInvalidRange
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidCacheSize):
		return CodeInvalidCacheSize
	case errors.Is(err, ErrMatchTimeout):
		return CodeMatchTimeout
	default:
		return CodeBadRequest
	}
}
