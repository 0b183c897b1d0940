package pipeline

import (
	"time"

	"conveyor/internal/common/errors"
)

// Graph is a complete pipeline definition: the stage tree plus run-scoped
// declarations (parameters, environment, global timeout, post hooks).
// Strategy builders produce graphs; the engine executes them.
type Graph struct {
	Name       string
	Root       *Stage
	Parameters []Parameter

	// Env seeds the root environment frame for every run of this graph.
	Env map[string]string

	// Timeout bounds the whole run. When it fires, every in-flight stage
	// is cancelled and reported as TIMED_OUT. Zero means no global bound.
	Timeout time.Duration

	// ContinueAfterFailure disables sequential short-circuiting: later
	// siblings still run after a failed stage.
	ContinueAfterFailure bool

	// Post hooks run after the stage tree finishes, regardless of how.
	Post PostHooks
}

// PostHooks are cleanup/report stages run once the aggregate outcome is
// known. Always runs for every outcome; Success and Failure run for their
// respective aggregate statuses. Hook failures never change the outcome.
type PostHooks struct {
	Always  []*Stage
	Success []*Stage
	Failure []*Stage
}

// Validate checks the graph and its stage tree.
func (g *Graph) Validate() error {
	if g.Name == "" {
		return errors.ValidationError("graph name is required")
	}
	if g.Root == nil {
		return errors.ValidationError("graph must have a root stage")
	}
	if err := g.Root.Validate(); err != nil {
		return err
	}
	for _, hooks := range [][]*Stage{g.Post.Always, g.Post.Success, g.Post.Failure} {
		for _, hook := range hooks {
			if err := hook.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}
