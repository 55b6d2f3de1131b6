// Package modulecache implements the LRU+TTL cache of ready-to-invoke
// module stubs described in spec §4.B: content-hash deduplication,
// concurrent-load coalescing, and size/TTL-bounded eviction.
//
// # Coalescing
//
// Concurrent Get calls for the same FunctionId collapse onto a single
// in-flight Loader call via golang.org/x/sync/singleflight — this is the
// "Pending Load" future from the data model. The result (or error) fans
// out to every caller.
//
// # Ordering
//
// LRU ordering is delegated to hashicorp/golang-lru/v2, which has no TTL
// concept of its own, so each entry additionally carries its own
// loadedAt/lastAccessedAt for the validity check. The LRU's eviction
// callback keeps the codeHash -> FunctionId secondary index consistent
// with the primary entry map, as required by spec §9 "Map keyed by
// content hash".
package modulecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/oriys/fncore/internal/domain"
)

// Loader fetches and instantiates a stub for functionID on a cache miss.
// It returns the stub together with the codeHash it was built from, so
// the cache can populate the secondary dedup index.
type Loader func(ctx context.Context, functionID string) (stub domain.Stub, codeHash string, err error)

// Config holds the cache's size and expiry parameters (spec §4.B).
type Config struct {
	MaxCacheSize int           // 0 means unbounded
	CacheTTL     time.Duration // 0 means entries never expire
}

type entry struct {
	stub           domain.Stub
	codeHash       string
	loadedAt       time.Time
	lastAccessedAt time.Time
}

func (e *entry) valid(ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return time.Since(e.loadedAt) < ttl
}

// Cache is the LRU+TTL module stub cache.
type Cache struct {
	cfg Config

	mu        sync.Mutex
	lru       *lru.Cache[string, *entry]
	hashIndex map[string]string // codeHash -> functionId

	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	dedups atomic.Int64
}

// New constructs a Cache. maxCacheSize <= 0 means unbounded (the
// hashicorp LRU requires a positive capacity, so 0 is mapped to a very
// large effective size rather than disabling eviction logic).
func New(cfg Config) *Cache {
	c := &Cache{cfg: cfg, hashIndex: make(map[string]string)}

	size := cfg.MaxCacheSize
	if size <= 0 {
		size = 1 << 30
	}
	l, _ := lru.NewWithEvict[string, *entry](size, c.onEvict)
	c.lru = l
	return c
}

// onEvict is invoked by the underlying LRU while c.mu is held (Get/Add
// call it synchronously), so it must not re-lock.
func (c *Cache) onEvict(functionID string, e *entry) {
	if c.hashIndex[e.codeHash] == functionID {
		delete(c.hashIndex, e.codeHash)
	}
}

// Get implements the spec §4.B `get(functionId)` protocol: a fresh, valid
// entry is served directly; a stale one is dropped and reloaded; a miss
// coalesces with any in-flight load for the same functionID.
func (c *Cache) Get(ctx context.Context, functionID string, load Loader) (domain.Stub, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(functionID); ok {
		if e.valid(c.cfg.CacheTTL) {
			e.lastAccessedAt = time.Now()
			c.mu.Unlock()
			c.hits.Add(1)
			return e.stub, nil
		}
		c.lru.Remove(functionID)
	}
	c.mu.Unlock()

	c.misses.Add(1)

	v, err, _ := c.group.Do(functionID, func() (any, error) {
		stub, codeHash, err := load(ctx, functionID)
		if err != nil {
			return nil, err
		}
		c.insert(functionID, stub, codeHash)
		return stub, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Stub), nil
}

// LoadFunction implements the spec §4.B `loadFunction` dedup extension:
// if an existing valid entry was built from the same (code, tests,
// script) content, the resulting stub is cloned under the new functionID
// without re-instantiating.
func (c *Cache) LoadFunction(functionID, codeHash string, instantiate func() (domain.Stub, error)) (domain.Stub, error) {
	c.mu.Lock()
	if existingID, ok := c.hashIndex[codeHash]; ok && existingID != functionID {
		if e, ok := c.lru.Get(existingID); ok && e.valid(c.cfg.CacheTTL) {
			c.mu.Unlock()
			c.dedups.Add(1)
			c.hits.Add(1)
			cloned := cloneStub(e.stub, functionID)
			c.insert(functionID, cloned, codeHash)
			return cloned, nil
		}
	}
	c.mu.Unlock()

	stub, err := instantiate()
	if err != nil {
		return nil, err
	}
	c.insert(functionID, stub, codeHash)
	return stub, nil
}

func (c *Cache) insert(functionID string, stub domain.Stub, codeHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.lru.Add(functionID, &entry{stub: stub, codeHash: codeHash, loadedAt: now, lastAccessedAt: now})
	c.hashIndex[codeHash] = functionID
}

// Invalidate removes functionID's entry and its hash-index edge.
func (c *Cache) Invalidate(functionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(functionID)
}

// Stats reports hit/miss/dedup counters (spec invariant 3: hits+misses
// equals the number of Get calls observed).
type Stats struct {
	Hits    int64
	Misses  int64
	Dedups  int64
	HitRate float64
}

func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Dedups: c.dedups.Load()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// clonedStub wraps an existing stub, overriding only ID() so the
// deduplicated entry reports the new FunctionId while delegating actual
// invocation to the shared underlying stub.
type clonedStub struct {
	domain.Stub
	id string
}

func (c *clonedStub) ID() string { return c.id }

func cloneStub(s domain.Stub, newID string) domain.Stub {
	return &clonedStub{Stub: s, id: newID}
}
