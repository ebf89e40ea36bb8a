// Package registry owns scanner instances under numeric identifiers and
// bounds their number with least-recently-used eviction.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/praetorian-inc/tmscan/pkg/matcher"
	"github.com/praetorian-inc/tmscan/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instance is a registered scanner.
type Instance struct {
	ID uint64

	scanner  *matcher.Scanner
	lastUsed atomic.Int64
}

// FindNextMatch runs the instance's scanner. Calls on one instance are serialized.
// It fails with types.ErrNotFound if the instance was destroyed or evicted.
func (i *Instance) FindNextMatch(text string, start int) (types.MatchResult, error) {
	return i.scanner.FindNextMatch(text, start)
}

// Scanner returns the underlying scanner.
func (i *Instance) Scanner() *matcher.Scanner {
	return i.scanner
}

// LastUsed returns the logical time of the most recent creation or lookup.
func (i *Instance) LastUsed() int64 {
	return i.lastUsed.Load()
}

// Stats is a snapshot of registry activity.
type Stats struct {
	Live      int    `json:"live"`
	Created   uint64 `json:"created"`
	Destroyed uint64 `json:"destroyed"`
	Evicted   uint64 `json:"evicted"`
	NextID    uint64 `json:"next_id"`
	Clock     int64  `json:"clock"` // logical time of the latest create or lookup
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Evictions are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for registry metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Registry) {
		if mp != nil {
			r.meterProvider = mp
		}
	}
}

// WithScannerOptions sets the options passed to every scanner the registry creates.
func WithScannerOptions(opts matcher.Options) Option {
	return func(r *Registry) {
		r.scannerOpts = opts
	}
}

// Registry maps identifiers to scanner instances.
//
// Structural operations (Create, Get, Destroy, eviction, Close) are
// serialized on one mutex. The budget passed to Create applies from that
// call on: after it returns, at most maxCacheSize instances are registered.
type Registry struct {
	mu  sync.Mutex
	lru *simplelru.LRU[uint64, *Instance]

	nextID uint64
	clock  *Clock
	stats  Stats

	logger        *slog.Logger
	meterProvider metric.MeterProvider
	metrics       *metrics
	scannerOpts   matcher.Options
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		nextID:        1,
		clock:         NewClock(),
		logger:        slog.Default(),
		meterProvider: otel.GetMeterProvider(),
		scannerOpts:   matcher.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scannerOpts.Logger == nil {
		r.scannerOpts.Logger = r.logger
	}
	r.metrics = newMetrics(r.meterProvider)

	// Capacity is enforced by Create against the caller's budget, so the
	// list itself is effectively unbounded.
	lru, err := simplelru.NewLRU[uint64, *Instance](math.MaxInt, r.release)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	r.lru = lru
	return r
}

// Create registers a new scanner over set and returns its identifier.
// Least recently used instances are evicted until at most maxCacheSize remain.
func (r *Registry) Create(set *matcher.CompiledSet, maxCacheSize int) (uint64, error) {
	if maxCacheSize < 1 {
		return 0, fmt.Errorf("max cache size %d: %w", maxCacheSize, types.ErrInvalidCacheSize)
	}
	if set == nil {
		return 0, fmt.Errorf("nil pattern set: %w", types.ErrInvalidPattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst := &Instance{
		ID:      r.nextID,
		scanner: matcher.NewScanner(set, r.scannerOpts),
	}
	inst.lastUsed.Store(r.clock.Next())
	r.nextID++

	r.lru.Add(inst.ID, inst)
	r.stats.Created++
	r.metrics.recordCreate(context.Background())

	for r.lru.Len() > maxCacheSize {
		id, victim, ok := r.lru.RemoveOldest()
		if !ok {
			break
		}
		r.stats.Evicted++
		r.metrics.recordEvict(context.Background())
		r.logger.Debug("evicted scanner",
			"scanner_id", id,
			"last_used", victim.LastUsed(),
			"max_cache_size", maxCacheSize,
		)
	}

	return inst.ID, nil
}

// Get looks up an instance and marks it most recently used.
func (r *Registry) Get(id uint64) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.lru.Get(id)
	if !ok {
		return nil, fmt.Errorf("scanner %d: %w", id, types.ErrNotFound)
	}
	inst.lastUsed.Store(r.clock.Next())
	return inst, nil
}

// Destroy removes and releases an instance.
func (r *Registry) Destroy(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lru.Remove(id) {
		return fmt.Errorf("scanner %d: %w", id, types.ErrNotFound)
	}
	r.stats.Destroyed++
	r.metrics.recordDestroy(context.Background())
	return nil
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// IDs returns registered identifiers from least to most recently used.
func (r *Registry) IDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Keys()
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	stats.Live = r.lru.Len()
	stats.NextID = r.nextID
	stats.Clock = r.clock.Current()
	return stats
}

// Close destroys every registered instance. The registry stays usable and
// identifiers keep increasing.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lru.Len()
	r.lru.Purge()
	if n > 0 {
		r.stats.Destroyed += uint64(n)
		r.metrics.destroyed.Add(context.Background(), int64(n))
		r.logger.Debug("closed registry", "released", n)
	}
}

// release is the LRU eviction callback; it runs for Destroy, eviction and Close alike.
// It runs under r.mu and does not wait for a search in progress on inst.
func (r *Registry) release(_ uint64, inst *Instance) {
	inst.scanner.Release()
	r.metrics.recordRelease(context.Background())
}
