// Package pipeline defines the data model for pipeline graphs: stages,
// steps, environments, parameters and run state. The engine package walks
// these structures; this package only models and validates them.
package pipeline

import (
	"fmt"
	"time"

	"conveyor/internal/common/errors"
)

// StageKind determines how a stage's work is composed.
type StageKind int

const (
	// Leaf runs an ordered list of steps
	Leaf StageKind = iota
	// Sequential runs child stages strictly in declared order
	Sequential
	// Parallel runs child stages concurrently with a full join
	Parallel
)

// String returns the string representation of a stage kind
func (k StageKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Stage is a node in the pipeline tree. A Leaf carries steps; Sequential
// and Parallel stages carry children. Stage definitions are immutable
// during execution - all run state lives in StageResult.
type Stage struct {
	Name     string
	Kind     StageKind
	Children []*Stage
	Steps    []Step

	// When is evaluated against the active environment before the stage
	// runs; false skips the stage and everything under it.
	When Predicate

	// Timeout bounds the stage's wall-clock time. Zero inherits the
	// engine default.
	Timeout time.Duration

	// Gate pauses execution for manual approval before steps or children run.
	Gate *InputGate

	// Env declares stage-local environment entries, overlaid on the
	// parent scope for this stage and its descendants.
	Env map[string]string

	// Resource names an optional cross-run lock serializing stages that
	// request the same resource.
	Resource string
}

// Validate checks the stage tree invariants: a Leaf has at least one step
// and no children, a composite has at least one child and no steps, sibling
// names are unique, and no stage appears twice in the tree.
func (s *Stage) Validate() error {
	return s.validate(make(map[*Stage]bool))
}

func (s *Stage) validate(seen map[*Stage]bool) error {
	if s.Name == "" {
		return errors.ValidationError("stage name is required")
	}
	if seen[s] {
		return errors.ValidationError(fmt.Sprintf("stage %s appears more than once in the tree", s.Name))
	}
	seen[s] = true

	switch s.Kind {
	case Leaf:
		if len(s.Steps) == 0 {
			return errors.ValidationError(fmt.Sprintf("leaf stage %s must have at least one step", s.Name))
		}
		if len(s.Children) > 0 {
			return errors.ValidationError(fmt.Sprintf("leaf stage %s must not have children", s.Name))
		}
		for i := range s.Steps {
			if err := s.Steps[i].Validate(); err != nil {
				return errors.ValidationError(fmt.Sprintf("stage %s step %d: %v", s.Name, i, err))
			}
		}
	case Sequential, Parallel:
		if len(s.Children) == 0 {
			return errors.ValidationError(fmt.Sprintf("%s stage %s must have at least one child", s.Kind, s.Name))
		}
		if len(s.Steps) > 0 {
			return errors.ValidationError(fmt.Sprintf("%s stage %s must not have steps", s.Kind, s.Name))
		}
		names := make(map[string]bool, len(s.Children))
		for _, child := range s.Children {
			if child == nil {
				return errors.ValidationError(fmt.Sprintf("stage %s has a nil child", s.Name))
			}
			if names[child.Name] {
				return errors.ValidationError(fmt.Sprintf("stage %s has duplicate child name %s", s.Name, child.Name))
			}
			names[child.Name] = true
			if err := child.validate(seen); err != nil {
				return err
			}
		}
	default:
		return errors.ValidationError(fmt.Sprintf("stage %s has unknown kind %d", s.Name, s.Kind))
	}

	return nil
}

// InputGate is a manual-approval checkpoint. Execution pauses until an
// approval event resolves it or the timeout expires (treated as denial).
type InputGate struct {
	Message    string
	Approvers  []string // empty allows any approver
	Timeout    time.Duration
	Parameters []Parameter
}

// Allows reports whether the given approver may resolve this gate.
func (g *InputGate) Allows(approver string) bool {
	if len(g.Approvers) == 0 {
		return true
	}
	for _, allowed := range g.Approvers {
		if allowed == approver {
			return true
		}
	}
	return false
}

// Predicate is a when-condition evaluated against the active environment.
type Predicate func(env *Environment) bool

// EnvEquals returns a predicate that is true when the variable has the given value.
func EnvEquals(name, value string) Predicate {
	return func(env *Environment) bool {
		return env.Get(name) == value
	}
}

// EnvSet returns a predicate that is true when the variable is set and non-empty.
func EnvSet(name string) Predicate {
	return func(env *Environment) bool {
		return env.Get(name) != ""
	}
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return func(env *Environment) bool {
		return !p(env)
	}
}

// All combines predicates with logical AND.
func All(predicates ...Predicate) Predicate {
	return func(env *Environment) bool {
		for _, p := range predicates {
			if !p(env) {
				return false
			}
		}
		return true
	}
}
