// Package strategy maps application types to pipeline graph builders.
// A build request names an application type; the router dispatches to the
// registered builder by exact key match and returns its graph. Builders
// are pure: the same request always yields the same graph structure.
package strategy

import (
	"conveyor/internal/common/errors"
	"conveyor/internal/common/registry"
	"conveyor/internal/pipeline"
)

// RunRequest asks for a pipeline graph for one component build.
type RunRequest struct {
	Application string            `json:"application"` // strategy key, e.g. "nodejs-vm"
	Component   string            `json:"component"`   // component being built
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Builder constructs the pipeline graph for one application type.
type Builder interface {
	// GetType returns the strategy key this builder serves.
	GetType() string

	// Build produces the graph for the request.
	Build(req RunRequest) (*pipeline.Graph, error)
}

// Router dispatches run requests to builders by application type.
type Router struct {
	builders *registry.Registry[Builder]
}

// NewRouter creates a router with the given builders registered.
func NewRouter(builders ...Builder) *Router {
	r := &Router{builders: registry.New[Builder]()}
	for _, b := range builders {
		r.Register(b)
	}
	return r
}

// Register adds a builder, replacing any existing one for the same key.
func (r *Router) Register(builder Builder) {
	r.builders.Register(builder.GetType(), builder)
}

// Build resolves the request's application type and builds its graph.
// The match is exact; an unknown key is a typed unrecognized-strategy
// error, never a fallback to some other builder.
func (r *Router) Build(req RunRequest) (*pipeline.Graph, error) {
	if req.Application == "" {
		return nil, errors.ValidationError("application type is required")
	}
	if !r.builders.IsRegistered(req.Application) {
		return nil, errors.UnrecognizedStrategyError(req.Application)
	}

	builder, err := r.builders.Get(req.Application)
	if err != nil {
		return nil, err
	}
	return builder.Build(req)
}

// Types lists the registered strategy keys.
func (r *Router) Types() []string {
	return r.builders.GetAvailableTypes()
}
