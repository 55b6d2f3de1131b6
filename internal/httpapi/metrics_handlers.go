package httpapi

import (
	"net/http"
)

// getMetricsExport handles GET /export, rendering Prometheus text,
// OpenMetrics text, or JSON depending on ?format= (defaulting to
// Prometheus text via content negotiation on Accept, spec §6 "Metrics
// export").
func (h *Handler) getMetricsExport(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("format") {
	case "json":
		body, err := h.Exporter.JSON(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	default:
		// promhttp negotiates Prometheus vs OpenMetrics text from the
		// request's Accept header; "format=openmetrics" forces it.
		if r.URL.Query().Get("format") == "openmetrics" {
			r.Header.Set("Accept", "application/openmetrics-text;version=1.0.0;q=1,text/plain;version=0.0.4;q=0.5")
		}
		h.Exporter.Handler().ServeHTTP(w, r)
	}
}
