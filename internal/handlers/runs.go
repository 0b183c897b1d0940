package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"conveyor/internal/auth"
	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
	"conveyor/internal/common/pagination"
	"conveyor/internal/gates"
	"conveyor/internal/pipeline"
	"conveyor/internal/storage"
	"conveyor/internal/strategy"
)

// SubmitRunRequest selects a pipeline strategy and its inputs. When Wait
// is true the response carries the finished run; otherwise the run is
// executed in the background and only its identifier is returned.
type SubmitRunRequest struct {
	Application string            `json:"application"`
	Component   string            `json:"component"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Wait        bool              `json:"wait,omitempty"`
}

type runResponse struct {
	RunID    string `json:"runId"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// SubmitRun builds the graph for the requested application type and
// starts a run.
func (h *Handlers) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid request body"))
		return
	}

	graph, err := h.router.Build(strategy.RunRequest{
		Application: req.Application,
		Component:   req.Component,
		Parameters:  req.Parameters,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.Wait {
		run, err := h.engine.Execute(r.Context(), graph, req.Parameters)
		if err != nil {
			h.writeError(w, err)
			return
		}
		exit := pipeline.ExitCode(run)
		h.writeJSON(w, http.StatusOK, runResponse{
			RunID:    run.ID,
			Pipeline: graph.Name,
			Status:   string(run.Status()),
			ExitCode: &exit,
		})
		return
	}

	runID, err := h.engine.Submit(r.Context(), graph, req.Parameters)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("run submitted",
		logging.String("run_id", runID),
		logging.String("pipeline", graph.Name))
	h.writeJSON(w, http.StatusAccepted, runResponse{
		RunID:    runID,
		Pipeline: graph.Name,
		Status:   string(pipeline.RunPending),
	})
}

// ListRuns returns recent runs, newest first, paginated.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	params := pagination.ParseParams(r)

	if status := r.URL.Query().Get("status"); status != "" {
		runs, err := h.storage.ListRunsByStatus(status, params.Limit, params.Offset)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, pagination.NewResponse(runs, params.Page, params.PerPage, len(runs)))
		return
	}

	runs, total, err := h.storage.ListRuns(params.Limit, params.Offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pagination.NewResponse(runs, params.Page, params.PerPage, total))
}

type runDetailResponse struct {
	Run    *storage.RunRecord           `json:"run"`
	Stages []*storage.StageResultRecord `json:"stages"`
}

// GetRun returns a run record with its stage results.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	record, err := h.storage.GetRun(runID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	results, err := h.storage.GetStageResults(runID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, runDetailResponse{Run: record, Stages: results})
}

// ListGates returns the gates currently waiting for an operator decision.
func (h *Handlers) ListGates(w http.ResponseWriter, r *http.Request) {
	pending := h.engine.Gates().ListPending()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"gates": pending})
}

type approvalRequest struct {
	StageName  string            `json:"stageName"`
	Approved   bool              `json:"approved"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ResolveGate records an operator's decision on a pending gate. The
// approver identity comes from the authenticated token, never the body.
func (h *Handlers) ResolveGate(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	identity, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeError(w, errors.AuthError("approver identity missing"))
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.ValidationError("invalid request body"))
		return
	}
	if req.StageName == "" {
		h.writeError(w, errors.ValidationError("stageName is required"))
		return
	}

	err := h.engine.Gates().Resolve(gates.Event{
		RunID:      runID,
		StageName:  req.StageName,
		Approver:   identity.Subject,
		Approved:   req.Approved,
		Parameters: req.Parameters,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":    runID,
		"stage":    req.StageName,
		"approved": req.Approved,
		"approver": identity.Subject,
	})
}

