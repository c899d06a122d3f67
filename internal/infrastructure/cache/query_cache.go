// Package cache implements the per-repository query cache: a fixed-capacity
// LRU with per-entry TTLs and pattern-based invalidation, plus deterministic
// cache-key construction.
//
// The cache is a pure optimization. Consumers must treat every miss,
// including "present but expired", as a normal fallthrough to the backend;
// nothing here is a correctness dependency. State is process-local: multiple
// instances behind a load balancer each see their own cache.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobboard-backend/internal/clock"
)

// Entry is one cached query result: the raw response rows and, when the
// query asked for one, the exact count.
type Entry struct {
	Data  []byte
	Count *int64
}

// item is the internal representation of a cached entry.
type item struct {
	key        string
	entry      Entry
	expiry     time.Time
	lruElement *list.Element
}

// Stats holds cache hit/size statistics for monitoring hooks.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	Items     int     `json:"items"`
	HitRate   float64 `json:"hitRate"`
}

// QueryCache is a thread-safe LRU cache with per-entry TTLs.
//
// A Get refreshes an entry's recency but never its expiry: an entry set
// with TTL t is gone at t regardless of how often it was read in between.
type QueryCache struct {
	mu       sync.Mutex
	items    map[string]*item
	lruList  *list.List
	capacity int

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	clock  clock.Clock
	logger *zap.Logger
}

// NewQueryCache creates a cache bounded to capacity entries.
func NewQueryCache(capacity int, clk clock.Clock, logger *zap.Logger) *QueryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if capacity <= 0 {
		capacity = 500
	}
	return &QueryCache{
		items:    make(map[string]*item),
		lruList:  list.New(),
		capacity: capacity,
		clock:    clk,
		logger:   logger,
	}
}

// Get returns the live entry for key. An expired entry is removed and
// reported as a miss, identically to an absent one.
func (c *QueryCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	if c.clock.Now().After(it.expiry) {
		c.removeItem(it)
		c.expired++
		c.misses++
		return Entry{}, false
	}

	c.lruList.MoveToFront(it.lruElement)
	c.hits++
	return it.entry, true
}

// Set inserts or overwrites the entry under key with the given TTL,
// evicting the least-recently-used entries if capacity is exceeded.
func (c *QueryCache) Set(key string, entry Entry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.removeItem(existing)
	}

	for len(c.items) >= c.capacity && c.lruList.Len() > 0 {
		oldest := c.lruList.Back()
		c.removeItem(oldest.Value.(*item))
		c.evictions++
	}

	it := &item{
		key:    key,
		entry:  entry,
		expiry: c.clock.Now().Add(ttl),
	}
	it.lruElement = c.lruList.PushFront(it)
	c.items[key] = it
}

// DeletePattern removes every entry whose key matches the pattern: a
// trailing '*' matches by prefix, otherwise any key containing the pattern
// is removed. Used for targeted invalidation after writes.
func (c *QueryCache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*item
	for key, it := range c.items {
		if matchPattern(key, pattern) {
			toDelete = append(toDelete, it)
		}
	}
	for _, it := range toDelete {
		c.removeItem(it)
	}

	if len(toDelete) > 0 {
		c.logger.Debug("cache invalidated",
			zap.String("pattern", pattern),
			zap.Int("count", len(toDelete)),
		)
	}
	return len(toDelete)
}

// Clear empties the cache.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
	c.lruList.Init()
}

// Stats returns hit/size statistics.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Items:     len(c.items),
		HitRate:   hitRate,
	}
}

// removeItem removes an item. Caller holds c.mu.
func (c *QueryCache) removeItem(it *item) {
	if it.lruElement != nil {
		c.lruList.Remove(it.lruElement)
	}
	delete(c.items, it.key)
}

// matchPattern matches by prefix for patterns ending in '*', otherwise by
// substring.
func matchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1])
	}
	return strings.Contains(key, pattern)
}
