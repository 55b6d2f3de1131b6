package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/oriys/fncore/internal/domain"
	"github.com/oriys/fncore/internal/executor"
)

type executeRequestBody struct {
	FunctionID string `json:"functionId"`
	Code       string `json:"code"`
	TimeoutMs  int64  `json:"timeoutMs,omitempty"`
}

// postExecute handles POST /execute.
func (h *Handler) postExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.FunctionID == "" {
		writeErr(w, http.StatusBadRequest, "functionId is required")
		return
	}

	result, err := h.Executor.Execute(r.Context(), executor.ExecuteRequest{
		FunctionID: body.FunctionID,
		Code:       []byte(body.Code),
		Request:    domain.Request{Method: http.MethodPost},
		TimeoutMs:  body.TimeoutMs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getState handles GET /state.
func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Executor.GetState())
}

// getExecutionLogs handles GET /logs/{functionId} (Executor contract:
// ExecutionLog[] for one function, timestamp-descending).
func (h *Handler) getExecutionLogs(w http.ResponseWriter, r *http.Request) {
	functionID := r.PathValue("functionId")
	logs, err := h.Executor.GetExecutionLogs(r.Context(), functionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []domain.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// getAggregateMetrics handles GET /metrics/{functionId} (Executor
// contract: AggregateMetrics for one function).
func (h *Handler) getAggregateMetrics(w http.ResponseWriter, r *http.Request) {
	functionID := r.PathValue("functionId")
	agg, err := h.Executor.GetAggregateMetrics(r.Context(), functionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

type abortRequestBody struct {
	ExecutionID string `json:"executionId"`
}

// postAbort handles POST /abort.
func (h *Handler) postAbort(w http.ResponseWriter, r *http.Request) {
	var body abortRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.Executor.Abort(body.ExecutionID)
	w.WriteHeader(http.StatusOK)
}

// writeDomainError maps a *domain.Error's Kind to the spec's error
// status codes; any other error falls back to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	de, ok := err.(*domain.Error)
	if !ok {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case domain.KindBadRequest:
		status = http.StatusBadRequest
	case domain.KindFunctionNotFound, domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindMethodNotAllowed:
		status = http.StatusMethodNotAllowed
	case domain.KindQueueFull, domain.KindCircuitBreakerOpen:
		status = http.StatusServiceUnavailable
	case domain.KindLoadTimeout, domain.KindExecutionTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]any{"error": map[string]any{"kind": de.Kind, "message": de.Message}})
}
