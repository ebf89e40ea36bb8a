package matcher

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dlclark/regexp2"
	"github.com/praetorian-inc/tmscan/pkg/prefilter"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// DefaultMatchTimeout bounds a single regex search to prevent catastrophic backtracking.
const DefaultMatchTimeout = 5 * time.Second

// regexOptions is the primary dialect: ^ and $ are line anchors, as in TextMate grammars.
const regexOptions = regexp2.Multiline

// CompiledSet is an ordered, immutable set of compiled patterns.
// It is safe for concurrent use; per-call state lives in Scanner.
type CompiledSet struct {
	defs        []types.PatternDef
	regexes     []*regexp2.Regexp
	groupNums   [][]int // capture group numbers per pattern, excluding group 0
	prefilter   *prefilter.Prefilter
	timeout     time.Duration
	fingerprint uint64
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	timeout time.Duration
	cache   *RegexCache
}

// WithMatchTimeout sets the per-search regex timeout. Zero or negative disables it.
func WithMatchTimeout(d time.Duration) CompileOption {
	return func(c *compileConfig) {
		c.timeout = d
	}
}

// WithRegexCache compiles through the given cache. A nil cache disables caching.
func WithRegexCache(cache *RegexCache) CompileOption {
	return func(c *compileConfig) {
		c.cache = cache
	}
}

// Compile validates and compiles an ordered pattern set.
// A definition that fails to compile yields a *types.PatternError naming its index.
func Compile(defs []types.PatternDef, opts ...CompileOption) (*CompiledSet, error) {
	cfg := &compileConfig{
		timeout: DefaultMatchTimeout,
		cache:   SharedRegexCache(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = regexp2.DefaultMatchTimeout
	}

	set := &CompiledSet{
		defs:      make([]types.PatternDef, len(defs)),
		regexes:   make([]*regexp2.Regexp, len(defs)),
		groupNums: make([][]int, len(defs)),
		timeout:   cfg.timeout,
	}

	for i, def := range defs {
		if err := validateKeywords(def); err != nil {
			return nil, &types.PatternError{Index: i, Source: def.Source, Err: err}
		}

		var re *regexp2.Regexp
		var err error
		if cfg.cache != nil {
			re, err = cfg.cache.Compile(def.Source, cfg.timeout)
		} else {
			re, err = compileRegex(def.Source, cfg.timeout)
		}
		if err != nil {
			return nil, &types.PatternError{Index: i, Source: def.Source, Err: err}
		}

		set.defs[i] = clonePatternDef(def)
		set.regexes[i] = re
		set.groupNums[i] = captureGroupNumbers(re)
	}

	set.prefilter = prefilter.New(set.defs)
	set.fingerprint = fingerprint(set.defs, cfg.timeout)

	return set, nil
}

// compileRegex compiles a single source in the primary dialect, falling back to
// RE2 compatibility mode for RE2-only syntax such as (?P<name>...).
func compileRegex(source string, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(source, regexOptions)
	if err != nil {
		var fallbackErr error
		re, fallbackErr = regexp2.Compile(source, regexOptions|regexp2.RE2)
		if fallbackErr != nil {
			return nil, fmt.Errorf("compiling regex: %w", err)
		}
	}
	re.MatchTimeout = timeout
	return re, nil
}

func validateKeywords(def types.PatternDef) error {
	for i, kw := range def.Keywords {
		if kw == "" {
			return fmt.Errorf("keyword %d is empty", i)
		}
	}
	return nil
}

// captureGroupNumbers returns the group numbers of a regex in order, without group 0.
func captureGroupNumbers(re *regexp2.Regexp) []int {
	nums := re.GetGroupNumbers()
	out := make([]int, 0, len(nums))
	for _, n := range nums {
		if n != 0 {
			out = append(out, n)
		}
	}
	return out
}

func clonePatternDef(def types.PatternDef) types.PatternDef {
	if def.Keywords != nil {
		def.Keywords = append([]string(nil), def.Keywords...)
	}
	return def
}

// fingerprint hashes sources, tags, keywords and the timeout in definition order.
func fingerprint(defs []types.PatternDef, timeout time.Duration) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(defs)))
	h.Write(buf[:])
	for _, def := range defs {
		writeField(h, def.Source)
		writeField(h, def.Tag)
		binary.LittleEndian.PutUint64(buf[:], uint64(len(def.Keywords)))
		h.Write(buf[:])
		for _, kw := range def.Keywords {
			writeField(h, kw)
		}
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(timeout))
	h.Write(buf[:])
	return h.Sum64()
}

func writeField(h *xxhash.Digest, s string) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
	h.Write(buf[:])
	h.WriteString(s)
}

// Len returns the number of patterns in the set.
func (s *CompiledSet) Len() int {
	return len(s.defs)
}

// Patterns returns a copy of the pattern definitions in order.
func (s *CompiledSet) Patterns() []types.PatternDef {
	out := make([]types.PatternDef, len(s.defs))
	for i, def := range s.defs {
		out[i] = clonePatternDef(def)
	}
	return out
}

// Fingerprint returns a deterministic hash of the set's definitions and options.
func (s *CompiledSet) Fingerprint() uint64 {
	return s.fingerprint
}

// MatchTimeout returns the per-search regex timeout.
func (s *CompiledSet) MatchTimeout() time.Duration {
	return s.timeout
}
