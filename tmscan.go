// Package tmscan finds the next match of an ordered set of regex patterns in
// a text, the primitive behind TextMate-style tokenizers.
//
// # Basic Usage
//
// Create a scanner, walk the text, then destroy the scanner:
//
//	engine := tmscan.NewEngine()
//	defer engine.Close()
//
//	id, err := engine.CreateScanner(tmscan.PatternsFromSources([]string{`\d+`, `[a-z]+`}), 16)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.DestroyScanner(id)
//
//	for pos := 0; ; {
//	    m, err := engine.FindNextMatchSync(id, "abc 123", pos)
//	    if err != nil || !m.Matched {
//	        break
//	    }
//	    fmt.Printf("%s at %d-%d\n", m.Tag, m.Start, m.End)
//	    pos = m.End
//	}
//
// Scanners are held in a registry bounded by the maxCacheSize passed to each
// CreateScanner call; the least recently used scanners are evicted first and
// later lookups of an evicted scanner fail with ErrNotFound.
//
// The package-level CreateScanner, FindNextMatchSync and DestroyScanner
// functions use a process-wide engine created on first use.
package tmscan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/praetorian-inc/tmscan/pkg/matcher"
	"github.com/praetorian-inc/tmscan/pkg/patternset"
	"github.com/praetorian-inc/tmscan/pkg/registry"
	"github.com/praetorian-inc/tmscan/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Re-export commonly used types so callers can import just this package.
type (
	// PatternDef is a regex with the tag reported for its matches.
	PatternDef = types.PatternDef

	// PatternSet is a named, ordered list of pattern definitions.
	PatternSet = types.PatternSet

	// MatchResult is the outcome of a find-next-match call.
	MatchResult = types.MatchResult

	// CaptureRange is the character span of one capture group.
	CaptureRange = types.CaptureRange

	// PatternError names the definition that failed to compile.
	PatternError = types.PatternError
)

// Re-export error sentinels.
var (
	ErrInvalidPattern   = types.ErrInvalidPattern
	ErrInvalidRange     = types.ErrInvalidRange
	ErrNotFound         = types.ErrNotFound
	ErrInvalidCacheSize = types.ErrInvalidCacheSize
	ErrMatchTimeout     = types.ErrMatchTimeout
)

// PatternsFromSources builds definitions from bare regex sources, each tagged
// with its own source.
func PatternsFromSources(sources []string) []PatternDef {
	return types.PatternsFromSources(sources)
}

// Engine creates, runs and destroys scanners. It is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	config   *engineConfig

	cacheMetrics metric.Registration
}

// engineConfig holds engine configuration.
type engineConfig struct {
	logger        *slog.Logger
	matchTimeout  time.Duration
	tolerant      bool
	meterProvider metric.MeterProvider
	regexCache    *matcher.RegexCache
	noRegexCache  bool
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithLogger sets the logger used for evictions and skipped patterns.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMatchTimeout bounds each regex search. Default is 5s.
func WithMatchTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		c.matchTimeout = d
	}
}

// WithTolerant makes a timed-out pattern be skipped and logged rather than
// failing the call.
func WithTolerant() Option {
	return func(c *engineConfig) {
		c.tolerant = true
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// Default is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *engineConfig) {
		c.meterProvider = mp
	}
}

// WithRegexCache compiles patterns through cache instead of the process-wide
// cache. A nil cache disables regex caching.
func WithRegexCache(cache *matcher.RegexCache) Option {
	return func(c *engineConfig) {
		c.regexCache = cache
		c.noRegexCache = cache == nil
	}
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	config := &engineConfig{
		logger:        slog.Default(),
		matchTimeout:  matcher.DefaultMatchTimeout,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.logger == nil {
		config.logger = slog.Default()
	}
	if config.regexCache == nil && !config.noRegexCache {
		config.regexCache = matcher.SharedRegexCache()
	}

	e := &Engine{
		registry: registry.New(
			registry.WithLogger(config.logger),
			registry.WithMeterProvider(config.meterProvider),
			registry.WithScannerOptions(matcher.Options{
				Tolerant: config.tolerant,
				Logger:   config.logger,
			}),
		),
		config: config,
	}
	e.registerCacheMetrics()
	return e
}

// CreateScanner compiles defs and registers a scanner for them.
// After it returns, at most maxCacheSize scanners are registered; the least
// recently used are destroyed to make room.
func (e *Engine) CreateScanner(defs []PatternDef, maxCacheSize int) (uint64, error) {
	if maxCacheSize < 1 {
		return 0, fmt.Errorf("max cache size %d: %w", maxCacheSize, ErrInvalidCacheSize)
	}

	set, err := matcher.Compile(defs,
		matcher.WithMatchTimeout(e.config.matchTimeout),
		matcher.WithRegexCache(e.config.regexCache),
	)
	if err != nil {
		return 0, fmt.Errorf("compiling patterns: %w", err)
	}

	id, err := e.registry.Create(set, maxCacheSize)
	if err != nil {
		return 0, err
	}

	e.config.logger.Debug("created scanner",
		"scanner_id", id,
		"patterns", set.Len(),
		"fingerprint", fmt.Sprintf("%016x", set.Fingerprint()),
	)
	return id, nil
}

// CreateScannerFromSet registers a scanner for a loaded pattern set.
func (e *Engine) CreateScannerFromSet(ps *PatternSet, maxCacheSize int) (uint64, error) {
	if ps == nil {
		return 0, fmt.Errorf("nil pattern set: %w", ErrInvalidPattern)
	}
	return e.CreateScanner(ps.Patterns, maxCacheSize)
}

// FindNextMatchSync returns the earliest match at or after start in text.
// start is a character offset. Unknown, destroyed and evicted scanners fail
// with ErrNotFound; a negative start fails with ErrInvalidRange.
func (e *Engine) FindNextMatchSync(id uint64, text string, start int) (MatchResult, error) {
	inst, err := e.registry.Get(id)
	if err != nil {
		return types.NoMatch(), err
	}
	res, err := inst.FindNextMatch(text, start)
	if err != nil {
		return types.NoMatch(), fmt.Errorf("scanner %d: %w", id, err)
	}
	return res, nil
}

// DestroyScanner removes and releases a scanner.
func (e *Engine) DestroyScanner(id uint64) error {
	if err := e.registry.Destroy(id); err != nil {
		return err
	}
	e.config.logger.Debug("destroyed scanner", "scanner_id", id)
	return nil
}

// Patterns returns the pattern definitions of a registered scanner.
func (e *Engine) Patterns(id uint64) ([]PatternDef, error) {
	inst, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}
	set := inst.Scanner().Set()
	if set == nil {
		return nil, fmt.Errorf("scanner %d: %w", id, ErrNotFound)
	}
	return set.Patterns(), nil
}

// Fingerprint returns the pattern fingerprint of a registered scanner.
func (e *Engine) Fingerprint(id uint64) (uint64, error) {
	inst, err := e.registry.Get(id)
	if err != nil {
		return 0, err
	}
	set := inst.Scanner().Set()
	if set == nil {
		return 0, fmt.Errorf("scanner %d: %w", id, ErrNotFound)
	}
	return set.Fingerprint(), nil
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Registry   registry.Stats     `json:"registry"`
	RegexCache matcher.CacheStats `json:"regex_cache"`
}

// Stats returns registry and regex cache counters.
func (e *Engine) Stats() Stats {
	stats := Stats{Registry: e.registry.Stats()}
	if e.config.regexCache != nil {
		stats.RegexCache = e.config.regexCache.Stats()
	}
	return stats
}

// ScannerIDs returns registered scanner IDs from least to most recently used.
func (e *Engine) ScannerIDs() []uint64 {
	return e.registry.IDs()
}

// Close destroys every scanner and stops reporting regex cache metrics.
// Scanners can still be created afterwards; registry metrics keep working.
func (e *Engine) Close() error {
	e.registry.Close()
	if e.cacheMetrics != nil {
		if err := e.cacheMetrics.Unregister(); err != nil {
			return fmt.Errorf("unregistering metrics: %w", err)
		}
		e.cacheMetrics = nil
	}
	return nil
}

// registerCacheMetrics exports regex cache counters as observable instruments.
func (e *Engine) registerCacheMetrics() {
	cache := e.config.regexCache
	if cache == nil {
		return
	}

	meter := e.config.meterProvider.Meter("github.com/praetorian-inc/tmscan")
	entries, err := meter.Int64ObservableGauge("tmscan.regex_cache.entries",
		metric.WithDescription("Compiled regexes currently cached"))
	if err != nil {
		e.config.logger.Warn("regex cache metrics unavailable", "error", err)
		return
	}
	hits, err := meter.Int64ObservableCounter("tmscan.regex_cache.hits")
	if err != nil {
		e.config.logger.Warn("regex cache metrics unavailable", "error", err)
		return
	}
	misses, err := meter.Int64ObservableCounter("tmscan.regex_cache.misses")
	if err != nil {
		e.config.logger.Warn("regex cache metrics unavailable", "error", err)
		return
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := cache.Stats()
		o.ObserveInt64(entries, int64(stats.Entries))
		o.ObserveInt64(hits, stats.Hits)
		o.ObserveInt64(misses, stats.Misses)
		return nil
	}, entries, hits, misses)
	if err != nil {
		e.config.logger.Warn("regex cache metrics unavailable", "error", err)
		return
	}
	e.cacheMetrics = reg
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the process-wide engine, creating it on first use.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = NewEngine()
	})
	return defaultEngine
}

// CreateScanner registers a scanner on the default engine.
func CreateScanner(defs []PatternDef, maxCacheSize int) (uint64, error) {
	return Default().CreateScanner(defs, maxCacheSize)
}

// FindNextMatchSync finds the next match using a scanner on the default engine.
func FindNextMatchSync(id uint64, text string, start int) (MatchResult, error) {
	return Default().FindNextMatchSync(id, text, start)
}

// DestroyScanner destroys a scanner on the default engine.
func DestroyScanner(id uint64) error {
	return Default().DestroyScanner(id)
}

// LoadPatternSetFile loads a pattern set from a YAML file.
//
// Example:
//
//	ps, err := tmscan.LoadPatternSetFile("/path/to/go.yml")
//	if err != nil {
//	    return err
//	}
//	id, err := engine.CreateScannerFromSet(ps, 32)
func LoadPatternSetFile(path string) (*PatternSet, error) {
	return patternset.NewLoader().LoadPatternSetFile(path)
}

// LoadBuiltinPatternSets returns all built-in pattern sets.
func LoadBuiltinPatternSets() ([]*PatternSet, error) {
	return patternset.NewLoader().LoadBuiltinPatternSets()
}
