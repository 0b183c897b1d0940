package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
)

func TestEnvironment_Scoping(t *testing.T) {
	root := NewEnvironment(map[string]string{"APP": "cart", "ENV": "dev"})
	child := root.Overlay(map[string]string{"ENV": "prod", "VERSION": "1.2.0"})

	// Child sees overlaid and inherited values
	assert.Equal(t, "cart", child.Get("APP"))
	assert.Equal(t, "prod", child.Get("ENV"))
	assert.Equal(t, "1.2.0", child.Get("VERSION"))

	// Parent is untouched by the overlay
	assert.Equal(t, "dev", root.Get("ENV"))
	_, ok := root.Lookup("VERSION")
	assert.False(t, ok)
}

func TestEnvironment_SetShadowsParent(t *testing.T) {
	root := NewEnvironment(map[string]string{"ENV": "dev"})
	child := root.Overlay(nil)

	child.Set("ENV", "staging")

	assert.Equal(t, "staging", child.Get("ENV"))
	assert.Equal(t, "dev", root.Get("ENV"), "child writes must never mutate the parent")
}

func TestEnvironment_Expand(t *testing.T) {
	env := NewEnvironment(map[string]string{"VERSION": "2.0.1", "APP": "cart"})

	assert.Equal(t, "cart-2.0.1.zip", env.Expand("${APP}-${VERSION}.zip"))
	assert.Equal(t, "missing: ", env.Expand("missing: ${NOPE}"))
}

func TestEnvironment_Flatten(t *testing.T) {
	root := NewEnvironment(map[string]string{"B": "2", "A": "1"})
	child := root.Overlay(map[string]string{"B": "override"})

	assert.Equal(t, []string{"A=1", "B=override"}, child.Flatten())
}

func TestStage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		stage   *Stage
		wantErr string
	}{
		{
			name:  "valid leaf",
			stage: &Stage{Name: "Build", Kind: Leaf, Steps: []Step{{Command: "make"}}},
		},
		{
			name:    "leaf without steps",
			stage:   &Stage{Name: "Build", Kind: Leaf},
			wantErr: "at least one step",
		},
		{
			name:    "sequential without children",
			stage:   &Stage{Name: "Main", Kind: Sequential},
			wantErr: "at least one child",
		},
		{
			name: "duplicate sibling names",
			stage: &Stage{Name: "Main", Kind: Sequential, Children: []*Stage{
				{Name: "Test", Kind: Leaf, Steps: []Step{{Command: "a"}}},
				{Name: "Test", Kind: Leaf, Steps: []Step{{Command: "b"}}},
			}},
			wantErr: "duplicate child name",
		},
		{
			name: "step with command and action",
			stage: &Stage{Name: "Build", Kind: Leaf, Steps: []Step{
				{Command: "make", Action: &Emit{Message: "hi"}},
			}},
			wantErr: "both a command and an action",
		},
		{
			name:    "missing name",
			stage:   &Stage{Kind: Leaf, Steps: []Step{{Command: "make"}}},
			wantErr: "name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stage.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStage_Validate_SharedSubtree(t *testing.T) {
	shared := &Stage{Name: "Shared", Kind: Leaf, Steps: []Step{{Command: "true"}}}
	root := &Stage{Name: "Main", Kind: Sequential, Children: []*Stage{
		{Name: "A", Kind: Sequential, Children: []*Stage{shared}},
		{Name: "B", Kind: Parallel, Children: []*Stage{shared, {Name: "C", Kind: Leaf, Steps: []Step{{Command: "true"}}}}},
	}}

	err := root.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestResolveParameters(t *testing.T) {
	declared := []Parameter{
		{Name: "ENVIRONMENT", Type: ParamChoice, Choices: []string{"dev", "qa", "prod"}, Default: "dev"},
		{Name: "VERSION", Type: ParamString, Required: true},
		{Name: "SKIP_TESTS", Type: ParamBoolean, Default: "false"},
	}

	t.Run("valid", func(t *testing.T) {
		resolved, err := ResolveParameters(declared, map[string]string{"VERSION": "1.0.0", "ENVIRONMENT": "qa"})
		require.NoError(t, err)
		assert.Equal(t, "qa", resolved["ENVIRONMENT"])
		assert.Equal(t, "1.0.0", resolved["VERSION"])
		assert.Equal(t, "false", resolved["SKIP_TESTS"])
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := ResolveParameters(declared, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})

	t.Run("invalid choice", func(t *testing.T) {
		_, err := ResolveParameters(declared, map[string]string{"VERSION": "1.0.0", "ENVIRONMENT": "production"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be one of")
	})

	t.Run("invalid boolean", func(t *testing.T) {
		_, err := ResolveParameters(declared, map[string]string{"VERSION": "1.0.0", "SKIP_TESTS": "maybe"})
		require.Error(t, err)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := ResolveParameters(declared, map[string]string{"VERSION": "1.0.0", "TYPO": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown parameter")
	})
}

func TestPredicates(t *testing.T) {
	env := NewEnvironment(map[string]string{"ENVIRONMENT": "prod", "COMPONENT": "cart"})

	assert.True(t, EnvEquals("ENVIRONMENT", "prod")(env))
	assert.False(t, EnvEquals("ENVIRONMENT", "dev")(env))
	assert.True(t, EnvSet("COMPONENT")(env))
	assert.False(t, EnvSet("MISSING")(env))
	assert.True(t, Not(EnvSet("MISSING"))(env))
	assert.True(t, All(EnvSet("COMPONENT"), EnvEquals("ENVIRONMENT", "prod"))(env))
	assert.False(t, All(EnvSet("COMPONENT"), EnvEquals("ENVIRONMENT", "dev"))(env))
}

func TestInputGate_Allows(t *testing.T) {
	gate := &InputGate{Approvers: []string{"alice", "bob"}}
	assert.True(t, gate.Allows("alice"))
	assert.False(t, gate.Allows("mallory"))

	open := &InputGate{}
	assert.True(t, open.Allows("anyone"))
}

func TestExitCode(t *testing.T) {
	graph := &Graph{Name: "p", Root: &Stage{Name: "Build", Kind: Leaf, Steps: []Step{{Command: "true"}}}}

	run := NewRun("run-1", graph, NewEnvironment(nil), nil)
	run.SetStatus(RunSuccess)
	assert.Equal(t, ExitSuccess, ExitCode(run))

	run = NewRun("run-2", graph, NewEnvironment(nil), nil)
	run.SetStatus(RunFailure)
	assert.Equal(t, ExitFailure, ExitCode(run))

	run = NewRun("run-3", graph, NewEnvironment(nil), nil)
	run.MarkTimedOut()
	run.SetStatus(RunFailure)
	assert.Equal(t, ExitTimedOut, ExitCode(run))

	run = NewRun("run-4", graph, NewEnvironment(nil), nil)
	run.SetStatus(RunAborted)
	assert.Equal(t, ExitAborted, ExitCode(run))
}

func TestGraph_Validate(t *testing.T) {
	graph := &Graph{
		Name: "node-vm",
		Root: &Stage{Name: "Main", Kind: Sequential, Children: []*Stage{
			{Name: "Build", Kind: Leaf, Steps: []Step{{Command: "npm ci"}}},
		}},
		Timeout: time.Hour,
		Post: PostHooks{
			Always: []*Stage{{Name: "Cleanup", Kind: Leaf, Steps: []Step{{Command: "rm -rf tmp"}}}},
		},
	}
	assert.NoError(t, graph.Validate())

	assert.Error(t, (&Graph{Name: "x"}).Validate())
	assert.Error(t, (&Graph{Root: graph.Root}).Validate())
}

func TestStageSnapshot(t *testing.T) {
	stage := &Stage{Name: "Main", Kind: Sequential, Children: []*Stage{
		{Name: "Build", Kind: Leaf, Steps: []Step{{Command: "npm ci"}, {Name: "Package", Command: "npm pack"}}},
		{Name: "Approve", Kind: Leaf, Gate: &InputGate{Message: "deploy?"}, Steps: []Step{{Action: &Emit{Message: "ok"}}}},
	}}

	snap := stage.Snapshot()
	require.Len(t, snap.Children, 2)
	assert.Equal(t, "sequential", snap.Kind)
	assert.Equal(t, []string{"npm ci", "Package"}, snap.Children[0].Steps)
	assert.True(t, snap.Children[1].HasGate)
}
