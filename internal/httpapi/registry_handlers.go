package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/oriys/fncore/internal/registry"
)

// postFunctionSpec handles POST /functions, registering or updating a
// FunctionSpec ahead of its first invocation.
func (h *Handler) postFunctionSpec(w http.ResponseWriter, r *http.Request) {
	var spec registry.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if spec.ID == "" {
		writeErr(w, http.StatusBadRequest, "id is required")
		return
	}
	spec = h.Specs.Register(r.Context(), spec)
	writeJSON(w, http.StatusOK, spec)
}

// getFunctionSpec handles GET /functions/{functionId}.
func (h *Handler) getFunctionSpec(w http.ResponseWriter, r *http.Request) {
	spec, ok := h.Specs.Get(r.Context(), r.PathValue("functionId"))
	if !ok {
		writeErr(w, http.StatusNotFound, "unknown function id")
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

// listFunctionSpecs handles GET /functions.
func (h *Handler) listFunctionSpecs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Specs.List())
}
