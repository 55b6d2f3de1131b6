// Package httpapi implements the Executor HTTP contract and the
// Log store HTTP contract (spec §6), plus the metrics export endpoint
// (spec §4.G), as a single mux-backed handler suitable for direct use or
// for mounting behind an edge router.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/oriys/fncore/internal/executor"
	"github.com/oriys/fncore/internal/logstore"
	"github.com/oriys/fncore/internal/metrics"
	"github.com/oriys/fncore/internal/registry"
)

// Handler wires the Function Executor, Log/Metric Store, Metrics
// Exporter and FunctionSpec registry onto an HTTP surface.
type Handler struct {
	Executor *executor.Manager
	Logs     *logstore.Store
	Exporter *metrics.Exporter
	Specs    *registry.Registry
}

// RegisterRoutes registers every route from spec §6 on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /execute", h.postExecute)
	mux.HandleFunc("GET /state", h.getState)
	mux.HandleFunc("GET /logs/{functionId}", h.getExecutionLogs)
	mux.HandleFunc("GET /metrics/{functionId}", h.getAggregateMetrics)
	mux.HandleFunc("POST /abort", h.postAbort)

	mux.HandleFunc("POST /logs", h.postLogEntry)
	mux.HandleFunc("GET /logs", h.getLogPage)
	mux.HandleFunc("GET /metrics", h.getLogMetrics)
	mux.HandleFunc("DELETE /logs/{functionId}", h.deleteLogsForFunction)

	mux.HandleFunc("GET /export", h.getMetricsExport)

	mux.HandleFunc("POST /functions", h.postFunctionSpec)
	mux.HandleFunc("GET /functions", h.listFunctionSpecs)
	mux.HandleFunc("GET /functions/{functionId}", h.getFunctionSpec)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
