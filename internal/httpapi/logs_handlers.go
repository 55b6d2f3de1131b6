package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oriys/fncore/internal/domain"
)

type postLogBody struct {
	FunctionID string         `json:"functionId"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Timestamp  int64          `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	DurationMs *int64         `json:"durationMs,omitempty"`
}

// postLogEntry handles POST /logs.
func (h *Handler) postLogEntry(w http.ResponseWriter, r *http.Request) {
	var body postLogBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.FunctionID == "" || body.Level == "" || body.Message == "" {
		writeErr(w, http.StatusBadRequest, "functionId, level and message are required")
		return
	}

	entry, err := h.Logs.AppendLog(r.Context(), domain.LogEntry{
		FunctionID: body.FunctionID,
		Level:      domain.ConsoleLevel(body.Level),
		Message:    body.Message,
		Timestamp:  body.Timestamp,
		Metadata:   body.Metadata,
		RequestID:  body.RequestID,
		DurationMs: body.DurationMs,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// getLogPage handles GET /logs?functionId=&limit=&cursor=.
func (h *Handler) getLogPage(w http.ResponseWriter, r *http.Request) {
	functionID := r.URL.Query().Get("functionId")
	if functionID == "" {
		writeErr(w, http.StatusBadRequest, "functionId is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := h.Logs.QueryLogs(r.Context(), functionID, limit, cursor)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// getLogMetrics handles GET /metrics?functionId=.
func (h *Handler) getLogMetrics(w http.ResponseWriter, r *http.Request) {
	functionID := r.URL.Query().Get("functionId")
	if functionID == "" {
		writeErr(w, http.StatusBadRequest, "functionId is required")
		return
	}
	metrics, err := h.Logs.LogMetrics(r.Context(), functionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// deleteLogsForFunction handles DELETE /logs/{functionId}.
func (h *Handler) deleteLogsForFunction(w http.ResponseWriter, r *http.Request) {
	functionID := r.PathValue("functionId")
	if err := h.Logs.DeleteForFunction(r.Context(), functionID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
