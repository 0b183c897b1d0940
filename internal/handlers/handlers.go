// Package handlers implements the HTTP API: submitting and inspecting
// pipeline runs, resolving approval gates, serving the artifact store and
// accepting downstream trigger requests.
package handlers

import (
	"encoding/json"
	"net/http"

	"conveyor/internal/artifacts"
	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
	"conveyor/internal/config"
	"conveyor/internal/engine"
	"conveyor/internal/pipeline"
	"conveyor/internal/storage"
	"conveyor/internal/strategy"
)

type Handlers struct {
	config    *config.Config
	storage   storage.Storage
	engine    *engine.Engine
	router    *strategy.Router
	artifacts artifacts.Store
	trigger   pipeline.DeploymentTrigger
	logger    logging.Logger
}

func New(cfg *config.Config, store storage.Storage, eng *engine.Engine, router *strategy.Router, artifactStore artifacts.Store, trigger pipeline.DeploymentTrigger, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		config:    cfg,
		storage:   store,
		engine:    eng,
		router:    router,
		artifacts: artifactStore,
		trigger:   trigger,
		logger:    logger,
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Error("failed to encode response", err)
		}
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeUnrecognizedStrategy:
		status = http.StatusBadRequest
	case errors.ErrTypeAuth:
		status = http.StatusForbidden
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeConflict:
		status = http.StatusConflict
	case errors.ErrTypeTimeout, errors.ErrTypeGateTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrTypeTrigger:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HealthCheck reports orchestrator and storage health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}
	status := http.StatusOK
	if h.storage != nil {
		if err := h.storage.Health(); err != nil {
			health["status"] = "degraded"
			health["storage"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	h.writeJSON(w, status, health)
}
