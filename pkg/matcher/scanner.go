package matcher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dlclark/regexp2"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// Scanner runs find-next-match queries against a CompiledSet.
//
// Calls on one Scanner are serialized internally. The only state kept between
// calls is the decoded form of the most recent text, which does not affect results.
type Scanner struct {
	mu       sync.Mutex
	set      *CompiledSet
	opts     Options
	released atomic.Bool

	lastText  string
	lastRunes []rune
	hasLast   bool
}

// NewScanner creates a scanner over a compiled set.
func NewScanner(set *CompiledSet, opts Options) *Scanner {
	return &Scanner{
		set:  set,
		opts: opts,
	}
}

// Set returns the compiled pattern set, or nil once released.
func (s *Scanner) Set() *CompiledSet {
	if s.released.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// FindNextMatch returns the earliest match at or after start.
// Among matches with the same start, the first-defined pattern wins.
// start is a character offset; a start at or past the end of text yields no match.
func (s *Scanner) FindNextMatch(text string, start int) (types.MatchResult, error) {
	if start < 0 {
		return types.NoMatch(), fmt.Errorf("start position %d: %w", start, types.ErrInvalidRange)
	}

	s.mu.Lock()
	defer s.unlock()

	if s.released.Load() {
		return types.NoMatch(), fmt.Errorf("scanner released: %w", types.ErrNotFound)
	}

	runes := s.runesFor(text)
	if start >= len(runes) {
		return types.NoMatch(), nil
	}

	var candidates []bool
	if s.set.prefilter.Active() {
		candidates = s.set.prefilter.Filter([]byte(text[byteOffset(text, len(runes), start):]))
	}

	best := types.NoMatch()
	for i, re := range s.set.regexes {
		if candidates != nil && !candidates[i] {
			continue
		}

		// regexp2 only fails a search when MatchTimeout elapses. Its error
		// text embeds the whole input, so it is not passed on.
		match, err := re.FindRunesMatchStartingAt(runes, start)
		if err != nil {
			if !s.opts.Tolerant {
				return types.NoMatch(), fmt.Errorf("pattern %d: %w after %v", i, types.ErrMatchTimeout, s.set.timeout)
			}
			s.opts.logger().Warn("pattern search timed out, skipping",
				"pattern_index", i,
				"timeout", s.set.timeout,
			)
			continue
		}
		if match == nil {
			continue
		}

		if !best.Matched || match.Index < best.Start {
			best = s.buildResult(i, match)
			if best.Start == start {
				// nothing later in the list can start earlier or win the tie
				break
			}
		}
	}

	return best, nil
}

// Release marks the scanner released. Later calls fail with types.ErrNotFound.
// It does not wait for an in-flight FindNextMatch, which completes normally.
func (s *Scanner) Release() {
	s.released.Store(true)
	if s.mu.TryLock() {
		s.unlock()
	}
}

// Released reports whether Release has been called.
func (s *Scanner) Released() bool {
	return s.released.Load()
}

// unlock releases s.mu, first dropping held state if the scanner was released.
func (s *Scanner) unlock() {
	if s.released.Load() {
		s.set = nil
		s.lastText = ""
		s.lastRunes = nil
		s.hasLast = false
	}
	s.mu.Unlock()
}

func (s *Scanner) runesFor(text string) []rune {
	if s.hasLast && text == s.lastText {
		return s.lastRunes
	}
	s.lastText = text
	s.lastRunes = []rune(text)
	s.hasLast = true
	return s.lastRunes
}

func (s *Scanner) buildResult(idx int, match *regexp2.Match) types.MatchResult {
	result := types.MatchResult{
		Matched:      true,
		Start:        match.Index,
		End:          match.Index + match.Length,
		PatternIndex: idx,
		Tag:          s.set.defs[idx].Tag,
	}

	nums := s.set.groupNums[idx]
	if len(nums) == 0 {
		return result
	}

	result.Captures = make([]types.CaptureRange, len(nums))
	for j, num := range nums {
		group := match.GroupByNumber(num)
		if group == nil || len(group.Captures) == 0 {
			result.Captures[j] = types.CaptureRange{Start: -1, End: -1}
			continue
		}
		result.Captures[j] = types.CaptureRange{
			Start: group.Index,
			End:   group.Index + group.Length,
		}
	}
	return result
}

// byteOffset converts a rune offset into a byte offset of text.
func byteOffset(text string, runeCount, runeIdx int) int {
	if runeCount == len(text) {
		return runeIdx
	}
	n := 0
	for i := range text {
		if n == runeIdx {
			return i
		}
		n++
	}
	return len(text)
}
