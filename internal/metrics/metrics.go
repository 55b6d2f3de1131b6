// Package metrics implements the Metrics Exporter (spec §4.G):
// cross-function aggregation rendered as Prometheus text, OpenMetrics
// text, or JSON.
//
// Two things coexist here, matching the spec's split between durable
// aggregates and ephemeral counters:
//
//  1. Registry (this file) — a lightweight, per-function atomic counter
//     set for the numbers the Log/Metric Store doesn't itself track:
//     cold/warm starts and rate-limit (queue-full) hits. Recorded by the
//     Function Executor on the invocation hot path.
//  2. Exporter (prometheus.go, json.go) — pulls invocation counts, error counts and
//     duration/memory aggregates from the Log/Metric Store on demand and
//     combines them with the Registry's counters to render a scrape.
package metrics

import (
	"sync"
	"sync/atomic"
)

// funcCounters holds the ephemeral, in-process counters for one function.
type funcCounters struct {
	coldStarts    atomic.Int64
	warmStarts    atomic.Int64
	rateLimitHits atomic.Int64
	language      atomic.Value // string
}

// Registry tracks funcCounters per FunctionId.
type Registry struct {
	mu          sync.RWMutex
	perFunction map[string]*funcCounters
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{perFunction: make(map[string]*funcCounters)}
}

func (r *Registry) entry(functionID string) *funcCounters {
	r.mu.RLock()
	fc, ok := r.perFunction[functionID]
	r.mu.RUnlock()
	if ok {
		return fc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if fc, ok := r.perFunction[functionID]; ok {
		return fc
	}
	fc = &funcCounters{}
	r.perFunction[functionID] = fc
	return fc
}

// RecordColdStart marks one cold-start invocation for functionID.
func (r *Registry) RecordColdStart(functionID string) { r.entry(functionID).coldStarts.Add(1) }

// RecordWarmStart marks one warm-start invocation for functionID.
func (r *Registry) RecordWarmStart(functionID string) { r.entry(functionID).warmStarts.Add(1) }

// RecordRateLimitHit marks one QueueFull rejection for functionID.
func (r *Registry) RecordRateLimitHit(functionID string) { r.entry(functionID).rateLimitHits.Add(1) }

// SetLanguage records the runtime/language label for functionID, used
// purely for the `language` metric label and JSON languageBreakdown.
func (r *Registry) SetLanguage(functionID, language string) {
	r.entry(functionID).language.Store(language)
}

// FunctionIDs returns every function the Registry has observed.
func (r *Registry) FunctionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.perFunction))
	for id := range r.perFunction {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the current counters for functionID, zero-valued if
// functionID has never been recorded.
func (r *Registry) Snapshot(functionID string) (coldStarts, warmStarts, rateLimitHits int64, language string) {
	r.mu.RLock()
	fc, ok := r.perFunction[functionID]
	r.mu.RUnlock()
	if !ok {
		return 0, 0, 0, ""
	}
	lang, _ := fc.language.Load().(string)
	return fc.coldStarts.Load(), fc.warmStarts.Load(), fc.rateLimitHits.Load(), lang
}
