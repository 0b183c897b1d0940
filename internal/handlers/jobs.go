package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"conveyor/internal/common/errors"
)

type buildRequest struct {
	Parameters map[string]string `json:"parameters,omitempty"`
	Wait       bool              `json:"wait,omitempty"`
}

// TriggerBuild accepts downstream build requests, the server side of the
// trigger contract used between orchestrators.
func (h *Handlers) TriggerBuild(w http.ResponseWriter, r *http.Request) {
	jobRef := mux.Vars(r)["jobRef"]

	var req buildRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, errors.ValidationError("invalid request body"))
			return
		}
	}

	result, err := h.trigger.Trigger(r.Context(), jobRef, req.Parameters, req.Wait)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !req.Wait {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, result)
}
