package metrics

import (
	"context"
	"encoding/json"
	"time"
)

// jsonDurationMetrics mirrors the spec's durationMetrics sub-object.
type jsonDurationMetrics struct {
	AvgMs float64 `json:"avgMs"`
	MinMs float64 `json:"minMs"`
	MaxMs float64 `json:"maxMs"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
}

type jsonMemoryMetrics struct {
	AvgBytes   float64 `json:"avgBytes"`
	TotalBytes int64   `json:"totalBytes"`
}

type jsonColdStartMetrics struct {
	ColdStarts int64 `json:"coldStarts"`
	WarmStarts int64 `json:"warmStarts"`
}

type jsonRateLimitMetrics struct {
	Hits int64 `json:"hits"`
}

type jsonFunctionMetrics struct {
	InvocationCount int64                `json:"invocationCount"`
	DurationMetrics jsonDurationMetrics  `json:"durationMetrics"`
	ErrorRate       float64              `json:"errorRate"`
	MemoryMetrics   jsonMemoryMetrics    `json:"memoryMetrics"`
	ColdStartMetrics jsonColdStartMetrics `json:"coldStartMetrics"`
	RateLimitMetrics jsonRateLimitMetrics `json:"rateLimitMetrics"`
}

// jsonExport is the spec §4.G JSON export shape.
type jsonExport struct {
	Functions          map[string]jsonFunctionMetrics `json:"functions"`
	TotalInvocations   int64                          `json:"totalInvocations"`
	LanguageBreakdown  map[string]int64               `json:"languageBreakdown"`
	ExportedAt         string                          `json:"exportedAt"`
}

// JSON renders the current cross-function view as the spec's
// hierarchical JSON export.
func (e *Exporter) JSON(ctx context.Context) ([]byte, error) {
	out := jsonExport{
		Functions:         make(map[string]jsonFunctionMetrics),
		LanguageBreakdown: make(map[string]int64),
		ExportedAt:        time.Now().UTC().Format(time.RFC3339),
	}

	for _, fid := range sortedFunctionIDs(e.counters.FunctionIDs()) {
		cold, warm, rateLimit, lang := e.counters.Snapshot(fid)

		var total, failed int64
		var avgMemory float64
		var totalMemory int64
		var durMetrics jsonDurationMetrics
		if e.store != nil {
			if agg, err := e.store.AggregateMetrics(ctx, fid); err == nil {
				total, failed = agg.Total, agg.Failed
				avgMemory, totalMemory = agg.AvgMemoryBytes, agg.TotalMemoryBytes
				durMetrics = jsonDurationMetrics{
					AvgMs: agg.AvgDurationMs, MinMs: agg.MinDurationMs, MaxMs: agg.MaxDurationMs,
					P50Ms: agg.P50DurationMs, P95Ms: agg.P95DurationMs, P99Ms: agg.P99DurationMs,
				}
			}
		}

		var errorRate float64
		if total > 0 {
			errorRate = float64(failed) / float64(total)
		}

		out.Functions[fid] = jsonFunctionMetrics{
			InvocationCount:  total,
			DurationMetrics:  durMetrics,
			ErrorRate:        errorRate,
			MemoryMetrics:    jsonMemoryMetrics{AvgBytes: avgMemory, TotalBytes: totalMemory},
			ColdStartMetrics: jsonColdStartMetrics{ColdStarts: cold, WarmStarts: warm},
			RateLimitMetrics: jsonRateLimitMetrics{Hits: rateLimit},
		}
		out.TotalInvocations += total
		if lang != "" {
			out.LanguageBreakdown[lang] += total
		}
	}

	return json.Marshal(out)
}
