package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"conveyor/internal/handlers"
	"conveyor/internal/middleware"
	"conveyor/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the orchestrator.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, limiter *ratelimit.Limiter) {
	router.Use(middleware.LoggingMiddleware)
	if limiter != nil {
		router.Use(limiter.Middleware)
	}

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Artifact store. Uploads and downloads authenticate like the rest of
	// the API; pipeline steps talk to the store directly, not over HTTP.
	artifactRoutes := router.PathPrefix("/artifacts").Subrouter()
	artifactRoutes.Use(authMiddleware)
	artifactRoutes.HandleFunc("/{repository}/{version}/{filename}", h.UploadArtifact).Methods("PUT")
	artifactRoutes.HandleFunc("/{repository}/{version}/{filename}", h.DownloadArtifact).Methods("GET")

	// Downstream build trigger contract used between orchestrators.
	jobs := router.PathPrefix("/jobs").Subrouter()
	jobs.Use(authMiddleware)
	jobs.HandleFunc("/{jobRef}/build", h.TriggerBuild).Methods("POST")

	// Run management API.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)
	api.HandleFunc("/runs", h.SubmitRun).Methods("POST")
	api.HandleFunc("/runs", h.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/approvals", h.ResolveGate).Methods("POST")
	api.HandleFunc("/gates", h.ListGates).Methods("GET")
}
