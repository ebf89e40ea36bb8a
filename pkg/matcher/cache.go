package matcher

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultRegexCacheSize is the entry limit of the shared regex cache.
	DefaultRegexCacheSize = 1000

	// DefaultRegexCacheTTL is how long a compiled regex stays cached after insertion.
	DefaultRegexCacheTTL = time.Hour
)

var (
	sharedCache     *RegexCache
	sharedCacheOnce sync.Once
)

// SharedRegexCache returns the process-wide regex cache, creating it on first use.
func SharedRegexCache() *RegexCache {
	sharedCacheOnce.Do(func() {
		sharedCache = NewRegexCache(DefaultRegexCacheSize, DefaultRegexCacheTTL)
	})
	return sharedCache
}

type regexKey struct {
	source  string
	timeout time.Duration
}

// RegexCache reuses compiled regexes across pattern sets.
// Entries are bounded in number and expire after a TTL. Safe for concurrent use.
type RegexCache struct {
	lru    *expirable.LRU[regexKey, *regexp2.Regexp]
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is a snapshot of RegexCache usage.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewRegexCache creates a cache holding up to size regexes for ttl each.
// A non-positive ttl disables expiry.
func NewRegexCache(size int, ttl time.Duration) *RegexCache {
	if size <= 0 {
		size = DefaultRegexCacheSize
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RegexCache{
		lru: expirable.NewLRU[regexKey, *regexp2.Regexp](size, nil, ttl),
	}
}

// Compile returns a cached regex for source, compiling and caching it on a miss.
// Compile errors are not cached.
func (c *RegexCache) Compile(source string, timeout time.Duration) (*regexp2.Regexp, error) {
	key := regexKey{source: source, timeout: timeout}
	if re, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return re, nil
	}
	c.misses.Add(1)

	re, err := compileRegex(source, timeout)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, re)
	return re, nil
}

// Stats returns current cache counters.
func (c *RegexCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.lru.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Purge drops every cached regex. Counters are kept.
func (c *RegexCache) Purge() {
	c.lru.Purge()
}
