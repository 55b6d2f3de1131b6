// Package registry holds the FunctionSpec records described in
// SPEC_FULL.md §3 "Function record": enough identity and runtime
// metadata for the Loader to construct a Stub and for the Executor and
// Metrics Exporter to attach human-readable labels to what would
// otherwise be a bare FunctionId.
//
// The map of specs itself is the source of truth and lives in process
// memory; a cache.Cache sits in front of it purely as a read
// accelerator and, when backed by Redis, as the cross-instance
// invalidation channel described in that package's doc comment. A
// registry with no cache configured behaves identically, just without
// the accelerator.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/fncore/internal/cache"
)

// Spec is a FunctionSpec: the minimal identity and runtime metadata the
// rest of the core needs beyond a bare FunctionId/CodeHash pair.
type Spec struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Language     string   `json:"language"`
	Handlers     []string `json:"handlers"`
	RegisteredAt int64    `json:"registeredAt"`
}

// Registry stores and looks up FunctionSpec records.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec

	cache    cache.Cache // optional read-through accelerator
	cacheTTL time.Duration
}

// New constructs a Registry. c may be nil, in which case lookups are
// served directly from the in-memory map.
func New(c cache.Cache) *Registry {
	return &Registry{
		specs:    make(map[string]Spec),
		cache:    c,
		cacheTTL: 30 * time.Second,
	}
}

// Register upserts a FunctionSpec, stamping RegisteredAt if unset, and
// invalidates any cached copy so the next Get re-reads the fresh value.
func (r *Registry) Register(ctx context.Context, spec Spec) Spec {
	if spec.RegisteredAt == 0 {
		spec.RegisteredAt = time.Now().UnixMilli()
	}
	r.mu.Lock()
	r.specs[spec.ID] = spec
	r.mu.Unlock()

	if r.cache != nil {
		_ = r.cache.Delete(ctx, cacheKey(spec.ID))
	}
	return spec
}

// Get looks up a FunctionSpec by id, preferring the cache when present.
func (r *Registry) Get(ctx context.Context, id string) (Spec, bool) {
	if r.cache != nil {
		if spec, ok := cache.GetJSON[Spec](ctx, r.cache, cacheKey(id)); ok {
			return spec, true
		}
	}

	r.mu.RLock()
	spec, ok := r.specs[id]
	r.mu.RUnlock()
	if !ok {
		return Spec{}, false
	}

	if r.cache != nil {
		_ = cache.SetJSON(ctx, r.cache, cacheKey(id), spec, r.cacheTTL)
	}
	return spec, true
}

// List returns every registered spec, unordered.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}

func cacheKey(id string) string {
	return "spec:" + id
}
