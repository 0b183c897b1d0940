package pipeline

import (
	"context"
	"fmt"
)

// Step is the smallest unit of work inside a Leaf stage: either a shell
// command or a structured action. Steps run strictly in order; the first
// failing step aborts the rest of the leaf unless ContinueOnError is set.
type Step struct {
	Name    string
	Command string // shell command; mutually exclusive with Action
	Action  Action // structured action; mutually exclusive with Command

	// ContinueOnError lets the leaf proceed past a failure of this step.
	ContinueOnError bool

	// Env declares step-scoped environment overrides, visible to this
	// step and later steps in the same leaf only.
	Env map[string]string
}

// Validate checks that the step carries exactly one of Command or Action.
func (s *Step) Validate() error {
	if s.Command == "" && s.Action == nil {
		return fmt.Errorf("step must have a command or an action")
	}
	if s.Command != "" && s.Action != nil {
		return fmt.Errorf("step must not have both a command and an action")
	}
	return nil
}

// Describe returns a short human-readable description for logs and results.
func (s *Step) Describe() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Action != nil {
		return s.Action.Describe()
	}
	return s.Command
}

// Action is a structured step implementation (artifact transfer, downstream
// build, message emission). Actions receive the capabilities they need
// through the StepContext; the engine never depends on concrete services.
type Action interface {
	// Describe returns a short description for logs and results
	Describe() string

	// Execute performs the action and returns its output
	Execute(ctx context.Context, sc *StepContext) (string, error)
}

// StepContext carries the environment and injected capabilities available
// to a step while it executes.
type StepContext struct {
	Env         *Environment
	Workdir     string
	Artifacts   ArtifactStore
	Deployments DeploymentTrigger
	Emit        func(message string)
}

// ArtifactStore is the upload/download contract for versioned build
// artifacts. Versions within a repository are immutable once uploaded.
type ArtifactStore interface {
	Upload(ctx context.Context, repository, version, filename string, data []byte, overwrite bool) error
	Download(ctx context.Context, repository, version, filename string) ([]byte, error)
}

// DeploymentTrigger enqueues a downstream job with parameters. When wait
// is true the call blocks until the downstream run reaches a terminal
// status; otherwise it returns a queued acknowledgment.
type DeploymentTrigger interface {
	Trigger(ctx context.Context, jobRef string, parameters map[string]string, wait bool) (*TriggerResult, error)
}

// TriggerResult is the downstream job acknowledgment or terminal outcome.
type TriggerResult struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}
