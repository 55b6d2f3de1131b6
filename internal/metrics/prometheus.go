package metrics

import (
	"context"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/logstore"
)

// durationBuckets are the cumulative histogram boundaries the spec
// mandates for functions_duration_seconds.
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Exporter is a prometheus.Collector pulling its values from the
// Log/Metric Store and the ephemeral Registry on every scrape, rather
// than maintaining its own hot-path counters — matching the spec's
// framing of the exporter as a read-only aggregation over F.
type Exporter struct {
	counters *Registry
	store    *logstore.Store

	invocationsTotal   *prometheus.Desc
	errorsTotal        *prometheus.Desc
	coldStartsTotal    *prometheus.Desc
	warmStartsTotal    *prometheus.Desc
	rateLimitHitsTotal *prometheus.Desc
	durationSeconds    *prometheus.Desc
	memoryBytes        *prometheus.Desc
}

// NewExporter constructs an Exporter. store may be nil in which case
// Collect reports the store-backed invocation, error, duration and
// memory figures as zero alongside the ephemeral counters.
func NewExporter(counters *Registry, store *logstore.Store) *Exporter {
	labels := []string{"function_id", "language"}
	return &Exporter{
		counters: counters,
		store:    store,
		invocationsTotal:   prometheus.NewDesc("functions_invocations_total", "Total function invocations", labels, nil),
		errorsTotal:        prometheus.NewDesc("functions_errors_total", "Total failed function invocations", labels, nil),
		coldStartsTotal:    prometheus.NewDesc("functions_cold_starts_total", "Total cold-start invocations", labels, nil),
		warmStartsTotal:    prometheus.NewDesc("functions_warm_starts_total", "Total warm-start invocations", labels, nil),
		rateLimitHitsTotal: prometheus.NewDesc("functions_rate_limit_hits_total", "Total requests rejected for a full queue", labels, nil),
		durationSeconds:    prometheus.NewDesc("functions_duration_seconds", "Invocation duration in seconds", labels, nil),
		memoryBytes:        prometheus.NewDesc("functions_memory_bytes", "Average memory used per invocation", labels, nil),
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.invocationsTotal
	ch <- e.errorsTotal
	ch <- e.coldStartsTotal
	ch <- e.warmStartsTotal
	ch <- e.rateLimitHitsTotal
	ch <- e.durationSeconds
	ch <- e.memoryBytes
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	for _, fid := range e.counters.FunctionIDs() {
		cold, warm, rateLimit, lang := e.counters.Snapshot(fid)

		var total, failed int64
		var avgMemory float64
		var buckets map[float64]uint64
		var sumSeconds float64
		var count uint64

		if e.store != nil {
			if agg, err := e.store.AggregateMetrics(ctx, fid); err == nil {
				total, failed, avgMemory = agg.Total, agg.Failed, agg.AvgMemoryBytes
			}
			if rows, err := e.store.QueryExecutionsByFunction(ctx, fid); err == nil {
				buckets, sumSeconds, count = bucketDurations(rows)
			}
		}

		ch <- prometheus.MustNewConstMetric(e.invocationsTotal, prometheus.CounterValue, float64(total), fid, lang)
		ch <- prometheus.MustNewConstMetric(e.errorsTotal, prometheus.CounterValue, float64(failed), fid, lang)
		ch <- prometheus.MustNewConstMetric(e.coldStartsTotal, prometheus.CounterValue, float64(cold), fid, lang)
		ch <- prometheus.MustNewConstMetric(e.warmStartsTotal, prometheus.CounterValue, float64(warm), fid, lang)
		ch <- prometheus.MustNewConstMetric(e.rateLimitHitsTotal, prometheus.CounterValue, float64(rateLimit), fid, lang)
		ch <- prometheus.MustNewConstMetric(e.memoryBytes, prometheus.GaugeValue, avgMemory, fid, lang)

		hist, err := prometheus.NewConstHistogram(e.durationSeconds, count, sumSeconds, buckets, fid, lang)
		if err == nil {
			ch <- hist
		}
	}
}

// bucketDurations computes cumulative bucket counts, sum and count over
// every ended execution's duration, converted from milliseconds to
// seconds to match functions_duration_seconds.
func bucketDurations(rows []domain.ExecutionRecord) (map[float64]uint64, float64, uint64) {
	buckets := make(map[float64]uint64, len(durationBuckets))
	for _, b := range durationBuckets {
		buckets[b] = 0
	}
	var sum float64
	var count uint64
	for _, rec := range rows {
		if !rec.HasEnded {
			continue
		}
		seconds := float64(rec.DurationMs) / 1000
		sum += seconds
		count++
		for _, b := range durationBuckets {
			if seconds <= b {
				buckets[b]++
			}
		}
	}
	return buckets, sum, count
}

// PrometheusRegistry returns a *prometheus.Registry with e registered, ready for
// promhttp.HandlerFor — which negotiates Prometheus text vs OpenMetrics
// text from the request's Accept header, satisfying both of the spec's
// text export formats from one collector.
func (e *Exporter) PrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	return reg
}

// Handler returns an http.Handler serving Prometheus/OpenMetrics text
// (content negotiated via Accept) at the metrics export endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.PrometheusRegistry(), promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// sortedFunctionIDs is a small helper shared with the JSON renderer to
// keep output deterministic.
func sortedFunctionIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
