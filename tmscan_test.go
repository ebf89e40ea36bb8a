package tmscan

import (
	"context"
	"errors"
	"testing"

	"github.com/praetorian-inc/tmscan/pkg/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestEngine_EarliestMatchScenario(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	id, err := engine.CreateScanner([]PatternDef{
		{Source: "ab", Tag: "X"},
		{Source: "a", Tag: "Y"},
	}, 2)
	require.NoError(t, err)

	m, err := engine.FindNextMatchSync(id, "xxabxx", 0)
	require.NoError(t, err)
	require.True(t, m.Matched)
	assert.Equal(t, 2, m.Start)
	assert.Equal(t, 4, m.End)
	assert.Equal(t, "X", m.Tag)
	assert.Equal(t, 0, m.PatternIndex)
}

func TestEngine_EvictionScenario(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	defs := PatternsFromSources([]string{"a"})
	id1, err := engine.CreateScanner(defs, 2)
	require.NoError(t, err)
	id2, err := engine.CreateScanner(defs, 2)
	require.NoError(t, err)
	id3, err := engine.CreateScanner(defs, 2)
	require.NoError(t, err)

	_, err = engine.FindNextMatchSync(id1, "a", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []uint64{id2, id3} {
		m, err := engine.FindNextMatchSync(id, "a", 0)
		require.NoError(t, err)
		assert.True(t, m.Matched)
	}
}

func TestEngine_AccessProtectsFromEviction(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	defs := PatternsFromSources([]string{"a"})
	id1, err := engine.CreateScanner(defs, 2)
	require.NoError(t, err)
	id2, err := engine.CreateScanner(defs, 2)
	require.NoError(t, err)

	_, err = engine.FindNextMatchSync(id1, "a", 0)
	require.NoError(t, err)

	_, err = engine.CreateScanner(defs, 2)
	require.NoError(t, err)

	_, err = engine.FindNextMatchSync(id1, "a", 0)
	assert.NoError(t, err)
	_, err = engine.FindNextMatchSync(id2, "a", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_FreshIdentifiers(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	seen := make(map[uint64]bool)
	for i := 0; i < 20; i++ {
		id, err := engine.CreateScanner(PatternsFromSources([]string{"a"}), 3)
		require.NoError(t, err)
		assert.False(t, seen[id], "identifier %d reused", id)
		seen[id] = true
		if i%2 == 0 {
			require.NoError(t, engine.DestroyScanner(id))
		}
	}
}

func TestEngine_StartPositions(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	id, err := engine.CreateScanner(PatternsFromSources([]string{"x"}), 1)
	require.NoError(t, err)

	m, err := engine.FindNextMatchSync(id, "xxabxx", 6)
	require.NoError(t, err)
	assert.False(t, m.Matched)

	_, err = engine.FindNextMatchSync(id, "xxabxx", -1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestEngine_Destroy(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	id, err := engine.CreateScanner(PatternsFromSources([]string{"a"}), 4)
	require.NoError(t, err)
	require.NoError(t, engine.DestroyScanner(id))

	_, err = engine.FindNextMatchSync(id, "a", 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, engine.DestroyScanner(id), ErrNotFound)
	_, err = engine.Patterns(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_CreateErrors(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	_, err := engine.CreateScanner(PatternsFromSources([]string{"a", "("}), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	var perr *PatternError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Index)

	_, err = engine.CreateScanner(PatternsFromSources([]string{"a"}), 0)
	assert.ErrorIs(t, err, ErrInvalidCacheSize)

	_, err = engine.CreateScannerFromSet(nil, 4)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	assert.Equal(t, 0, engine.Stats().Registry.Live)
}

func TestEngine_CreateScannerFromBuiltinSet(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	sets, err := LoadBuiltinPatternSets()
	require.NoError(t, err)

	var jsonSet *PatternSet
	for _, ps := range sets {
		if ps.ID == "json" {
			jsonSet = ps
		}
	}
	require.NotNil(t, jsonSet)

	id, err := engine.CreateScannerFromSet(jsonSet, 4)
	require.NoError(t, err)

	text := `{"a": [1, true]}`
	var tags []string
	for pos := 0; ; {
		m, err := engine.FindNextMatchSync(id, text, pos)
		require.NoError(t, err)
		if !m.Matched {
			break
		}
		tags = append(tags, m.Tag)
		pos = m.End
	}

	assert.Equal(t, []string{
		"punctuation.json",
		"support.type.property-name.json",
		"punctuation.json",
		"punctuation.json",
		"constant.numeric.json",
		"punctuation.json",
		"constant.language.json",
		"punctuation.json",
		"punctuation.json",
	}, tags)
}

func TestEngine_Patterns(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	defs := []PatternDef{{Source: `\d+`, Tag: "num"}}
	id, err := engine.CreateScanner(defs, 1)
	require.NoError(t, err)

	got, err := engine.Patterns(id)
	require.NoError(t, err)
	assert.Equal(t, defs, got)
}

func TestEngine_StatsAndClose(t *testing.T) {
	cache := matcher.NewRegexCache(16, 0)
	engine := NewEngine(WithRegexCache(cache))

	defs := PatternsFromSources([]string{"a", "b"})
	_, err := engine.CreateScanner(defs, 1)
	require.NoError(t, err)
	_, err = engine.CreateScanner(defs, 1)
	require.NoError(t, err)

	stats := engine.Stats()
	assert.Equal(t, 1, stats.Registry.Live)
	assert.Equal(t, uint64(2), stats.Registry.Created)
	assert.Equal(t, uint64(1), stats.Registry.Evicted)
	assert.Equal(t, 2, stats.RegexCache.Entries)
	assert.Equal(t, int64(2), stats.RegexCache.Hits)
	assert.Equal(t, int64(2), stats.RegexCache.Misses)

	require.NoError(t, engine.Close())
	assert.Empty(t, engine.ScannerIDs())
}

func TestEngine_NoRegexCache(t *testing.T) {
	engine := NewEngine(WithRegexCache(nil))
	defer engine.Close()

	_, err := engine.CreateScanner(PatternsFromSources([]string{"a"}), 1)
	require.NoError(t, err)
	assert.Equal(t, matcher.CacheStats{}, engine.Stats().RegexCache)
}

func TestEngine_CacheMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	engine := NewEngine(WithMeterProvider(mp), WithRegexCache(matcher.NewRegexCache(8, 0)))
	defer engine.Close()

	_, err := engine.CreateScanner(PatternsFromSources([]string{"a"}), 1)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["tmscan.regex_cache.entries"])
	assert.True(t, names["tmscan.registry.created"])
}

func TestEngine_CloseStopsCacheMetricsOnly(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	engine := NewEngine(WithMeterProvider(mp), WithRegexCache(matcher.NewRegexCache(8, 0)))
	_, err := engine.CreateScanner(PatternsFromSources([]string{"a"}), 1)
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close(), "closing twice is harmless")

	id, err := engine.CreateScanner(PatternsFromSources([]string{"b"}), 1)
	require.NoError(t, err)
	m, err := engine.FindNextMatchSync(id, "ab", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Start)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.False(t, names["tmscan.regex_cache.entries"])
	assert.True(t, names["tmscan.registry.created"])
}

func TestDefaultEngine(t *testing.T) {
	assert.Same(t, Default(), Default())

	id, err := CreateScanner(PatternsFromSources([]string{`\s+`}), 8)
	require.NoError(t, err)

	m, err := FindNextMatchSync(id, "a b", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Start)

	require.NoError(t, DestroyScanner(id))
	_, err = FindNextMatchSync(id, "a b", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}
