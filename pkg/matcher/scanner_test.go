package matcher

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/praetorian-inc/tmscan/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T, defs []types.PatternDef, opts ...CompileOption) *Scanner {
	t.Helper()
	set, err := Compile(defs, opts...)
	require.NoError(t, err)
	return NewScanner(set, DefaultOptions())
}

func TestFindNextMatch_EarliestStartWins(t *testing.T) {
	s := newTestScanner(t, []types.PatternDef{
		{Source: "b+", Tag: "B"},
		{Source: "a", Tag: "A"},
	})

	res, err := s.FindNextMatch("xxabxx", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 2, res.Start)
	assert.Equal(t, 3, res.End)
	assert.Equal(t, 1, res.PatternIndex)
	assert.Equal(t, "A", res.Tag)
}

func TestFindNextMatch_TieGoesToFirstDefined(t *testing.T) {
	tests := []struct {
		name    string
		defs    []types.PatternDef
		wantTag string
		wantEnd int
	}{
		{
			name:    "longer first",
			defs:    []types.PatternDef{{Source: "ab", Tag: "X"}, {Source: "a", Tag: "Y"}},
			wantTag: "X",
			wantEnd: 4,
		},
		{
			name:    "shorter first",
			defs:    []types.PatternDef{{Source: "a", Tag: "Y"}, {Source: "ab", Tag: "X"}},
			wantTag: "Y",
			wantEnd: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(t, tt.defs)
			res, err := s.FindNextMatch("xxabxx", 0)
			require.NoError(t, err)
			require.True(t, res.Matched)
			assert.Equal(t, 2, res.Start)
			assert.Equal(t, tt.wantEnd, res.End)
			assert.Equal(t, tt.wantTag, res.Tag)
			assert.Equal(t, 0, res.PatternIndex)
		})
	}
}

func TestFindNextMatch_NoMatch(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{"z"}))

	res, err := s.FindNextMatch("xxabxx", 0)
	require.NoError(t, err)
	assert.Equal(t, types.NoMatch(), res)
}

func TestFindNextMatch_StartPositions(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{"ab"}))

	res, err := s.FindNextMatch("ab ab", 1)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 3, res.Start)

	res, err = s.FindNextMatch("ab ab", 5)
	require.NoError(t, err, "start at end of text is not an error")
	assert.False(t, res.Matched)

	res, err = s.FindNextMatch("ab ab", 50)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	res, err = s.FindNextMatch("", 0)
	require.NoError(t, err)
	assert.False(t, res.Matched)

	_, err = s.FindNextMatch("ab ab", -1)
	assert.ErrorIs(t, err, types.ErrInvalidRange)
}

func TestFindNextMatch_CharacterOffsets(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{"wörld"}))

	text := "héllo wörld"
	res, err := s.FindNextMatch(text, 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 6, res.Start)
	assert.Equal(t, 11, res.End)
	assert.Equal(t, "wörld", string([]rune(text)[res.Start:res.End]))

	res, err = s.FindNextMatch(text, 7)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestFindNextMatch_Captures(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{`(\w+)@(\w+)`}))

	res, err := s.FindNextMatch("mail bob@host now", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 5, res.Start)
	assert.Equal(t, 13, res.End)
	assert.Equal(t, []types.CaptureRange{{Start: 5, End: 8}, {Start: 9, End: 13}}, res.Captures)
}

func TestFindNextMatch_NonParticipatingGroup(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{`(a)|(b)`}))

	res, err := s.FindNextMatch("b", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.Len(t, res.Captures, 2)
	assert.False(t, res.Captures[0].Participated())
	assert.Equal(t, types.CaptureRange{Start: -1, End: -1}, res.Captures[0])
	assert.Equal(t, types.CaptureRange{Start: 0, End: 1}, res.Captures[1])
}

func TestFindNextMatch_NoGroupsNoCaptures(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{`\d+`}))

	res, err := s.FindNextMatch("x 42", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Nil(t, res.Captures)
}

func TestFindNextMatch_ContextBeforeStart(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{`(?<=a)b`, `^c`}))

	res, err := s.FindNextMatch("ab", 1)
	require.NoError(t, err)
	require.True(t, res.Matched, "lookbehind sees text before start")
	assert.Equal(t, 1, res.Start)

	res, err = s.FindNextMatch("ac\nc", 1)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 3, res.Start, "^ anchors to line starts only")
}

func TestFindNextMatch_AnchorAtStart(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{`\Gfoo`}))

	res, err := s.FindNextMatch("xfoo", 1)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 1, res.Start)

	res, err = s.FindNextMatch("xfoo", 0)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestFindNextMatch_KeywordPrefilter(t *testing.T) {
	s := newTestScanner(t, []types.PatternDef{
		{Source: `\d+`, Tag: "num", Keywords: []string{"secret"}},
		{Source: `z+`, Tag: "z"},
	})

	res, err := s.FindNextMatch("123 secret", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "num", res.Tag)

	res, err = s.FindNextMatch("123 zz", 0)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "z", res.Tag, "pattern without its keyword is skipped")

	// keywords are looked up from start onwards
	res, err = s.FindNextMatch("secret 123", 7)
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestFindNextMatch_KeywordPrefilterMultibyte(t *testing.T) {
	s := newTestScanner(t, []types.PatternDef{
		{Source: `k\w+`, Keywords: []string{"key"}},
	})

	res, err := s.FindNextMatch("ünï key1", 2)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 4, res.Start)
	assert.Equal(t, 8, res.End)
}

func TestFindNextMatch_RepeatedAndChangedText(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{"a"}))

	for i := 0; i < 3; i++ {
		res, err := s.FindNextMatch("bbba", 0)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Start)
	}

	res, err := s.FindNextMatch("ab", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Start)
}

func TestFindNextMatch_Tokenize(t *testing.T) {
	s := newTestScanner(t, []types.PatternDef{
		{Source: `[A-Za-z_]\w*`, Tag: "ident"},
		{Source: `\d+`, Tag: "number"},
		{Source: `[=;]`, Tag: "punct"},
	})

	text := "x = 42;"
	var tags []string
	pos := 0
	for {
		res, err := s.FindNextMatch(text, pos)
		require.NoError(t, err)
		if !res.Matched {
			break
		}
		tags = append(tags, res.Tag)
		pos = res.End
		if res.Len() == 0 {
			pos++
		}
	}

	assert.Equal(t, []string{"ident", "punct", "number", "punct"}, tags)
}

func TestFindNextMatch_Timeout(t *testing.T) {
	defs := []types.PatternDef{
		{Source: `^(a+)+$`, Tag: "evil"},
		{Source: `!`, Tag: "bang"},
	}
	text := strings.Repeat("a", 40) + "!"

	set, err := Compile(defs, WithMatchTimeout(20*time.Millisecond), WithRegexCache(nil))
	require.NoError(t, err)

	t.Run("strict", func(t *testing.T) {
		s := NewScanner(set, DefaultOptions())
		_, err := s.FindNextMatch(text, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrMatchTimeout)
		assert.Contains(t, err.Error(), "pattern 0")
		assert.Contains(t, err.Error(), "20ms")
		assert.NotContains(t, err.Error(), "aaaaaaaa", "error must not echo the input")
	})

	t.Run("tolerant", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		s := NewScanner(set, Options{Tolerant: true, Logger: logger})
		res, err := s.FindNextMatch(text, 0)
		require.NoError(t, err)
		require.True(t, res.Matched)
		assert.Equal(t, "bang", res.Tag)
		assert.Contains(t, buf.String(), "pattern search timed out")
	})
}

func TestScanner_Release(t *testing.T) {
	s := newTestScanner(t, types.PatternsFromSources([]string{"a"}))
	assert.False(t, s.Released())
	assert.NotNil(t, s.Set())

	s.Release()

	assert.True(t, s.Released())
	assert.Nil(t, s.Set())
	_, err := s.FindNextMatch("a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestScanner_ReleaseDoesNotWaitForSearch(t *testing.T) {
	set, err := Compile(
		types.PatternsFromSources([]string{`^(a+)+$`}),
		WithMatchTimeout(time.Second),
		WithRegexCache(nil),
	)
	require.NoError(t, err)
	s := NewScanner(set, DefaultOptions())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := s.FindNextMatch(strings.Repeat("a", 40)+"!", 0)
		done <- err
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	begin := time.Now()
	s.Release()
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.True(t, s.Released())
	assert.Nil(t, s.Set())

	select {
	case err := <-done:
		// ErrNotFound only if the goroutine had not reached the search yet
		assert.True(t, errors.Is(err, types.ErrMatchTimeout) || errors.Is(err, types.ErrNotFound), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("search did not finish")
	}

	_, err = s.FindNextMatch("a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFindNextMatch_Concurrent(t *testing.T) {
	s := newTestScanner(t, []types.PatternDef{
		{Source: `\d+`, Tag: "number"},
		{Source: `[a-z]+`, Tag: "word"},
	})

	texts := []string{"abc 123", "456 def", "ghi"}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := texts[i%len(texts)]
			for j := 0; j < 50; j++ {
				res, err := s.FindNextMatch(text, 0)
				assert.NoError(t, err)
				assert.True(t, res.Matched)
				assert.Equal(t, 0, res.Start)
			}
		}(i)
	}
	wg.Wait()
}
