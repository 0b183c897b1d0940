// Package testutil provides hand-rolled test doubles for the engine's
// collaborators: a scriptable command runner, artifact store and
// deployment trigger. All doubles record their calls for assertions.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
	"conveyor/internal/runner"
)

// RunnerCall records one command execution observed by the spy runner.
type RunnerCall struct {
	Command string
	Dir     string
	Env     []string
}

// ScriptedResult configures how the spy runner answers a command.
type ScriptedResult struct {
	Output   string
	ExitCode int
	Err      error
	Delay    time.Duration
}

// SpyRunner implements runner.Runner. Every command succeeds with exit 0
// unless a scripted result is registered for it. Commands are recorded in
// execution order.
type SpyRunner struct {
	mu      sync.Mutex
	calls   []RunnerCall
	scripts map[string]ScriptedResult
}

// NewSpyRunner creates an empty spy runner.
func NewSpyRunner() *SpyRunner {
	return &SpyRunner{scripts: make(map[string]ScriptedResult)}
}

// Script registers a canned result for a command line.
func (r *SpyRunner) Script(command string, result ScriptedResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[command] = result
}

// Fail makes a command exit with the given nonzero code.
func (r *SpyRunner) Fail(command string, exitCode int) {
	r.Script(command, ScriptedResult{ExitCode: exitCode, Output: fmt.Sprintf("command failed with code %d", exitCode)})
}

func (r *SpyRunner) Run(ctx context.Context, spec runner.CommandSpec) (*runner.CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, RunnerCall{Command: spec.Command, Dir: spec.Dir, Env: append([]string(nil), spec.Env...)})
	script, scripted := r.scripts[spec.Command]
	r.mu.Unlock()

	if scripted && script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-ctx.Done():
			return &runner.CommandResult{ExitCode: -1}, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return &runner.CommandResult{ExitCode: -1}, ctx.Err()
	}

	if !scripted {
		return &runner.CommandResult{Output: "ok", ExitCode: 0}, nil
	}
	if script.Err != nil {
		return &runner.CommandResult{ExitCode: -1}, script.Err
	}
	return &runner.CommandResult{Output: script.Output, ExitCode: script.ExitCode}, nil
}

// Calls returns the commands executed so far.
func (r *SpyRunner) Calls() []RunnerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunnerCall(nil), r.calls...)
}

// Commands returns just the command lines executed so far.
func (r *SpyRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	commands := make([]string, len(r.calls))
	for i, c := range r.calls {
		commands[i] = c.Command
	}
	return commands
}

// Ran reports whether the command was executed.
func (r *SpyRunner) Ran(command string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.Command == command {
			return true
		}
	}
	return false
}

type artifactKey struct {
	repository, version, filename string
}

// MockArtifactStore implements pipeline.ArtifactStore in memory.
type MockArtifactStore struct {
	mu        sync.Mutex
	artifacts map[artifactKey][]byte

	// ErrorOnMethod injects failures by method name.
	ErrorOnMethod map[string]error
}

func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{
		artifacts:     make(map[artifactKey][]byte),
		ErrorOnMethod: make(map[string]error),
	}
}

func (m *MockArtifactStore) Upload(ctx context.Context, repository, version, filename string, data []byte, overwrite bool) error {
	if err := m.ErrorOnMethod["Upload"]; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := artifactKey{repository, version, filename}
	if _, exists := m.artifacts[key]; exists && !overwrite {
		return errors.ConflictError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
	}
	m.artifacts[key] = append([]byte(nil), data...)
	return nil
}

func (m *MockArtifactStore) Download(ctx context.Context, repository, version, filename string) ([]byte, error) {
	if err := m.ErrorOnMethod["Download"]; err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.artifacts[artifactKey{repository, version, filename}]
	if !ok {
		return nil, errors.NotFoundError(fmt.Sprintf("artifact %s/%s/%s", repository, version, filename))
	}
	return append([]byte(nil), data...), nil
}

// Has reports whether an artifact was uploaded.
func (m *MockArtifactStore) Has(repository, version, filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.artifacts[artifactKey{repository, version, filename}]
	return ok
}

// TriggerCall records one downstream build request.
type TriggerCall struct {
	JobRef     string
	Parameters map[string]string
	Wait       bool
}

// MockTrigger implements pipeline.DeploymentTrigger and records requests.
type MockTrigger struct {
	mu    sync.Mutex
	calls []TriggerCall

	// Result is returned for every trigger unless Err is set.
	Result pipeline.TriggerResult
	Err    error
}

func NewMockTrigger() *MockTrigger {
	return &MockTrigger{Result: pipeline.TriggerResult{RunID: "downstream-1", Status: "SUCCESS"}}
}

func (m *MockTrigger) Trigger(ctx context.Context, jobRef string, parameters map[string]string, wait bool) (*pipeline.TriggerResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, TriggerCall{JobRef: jobRef, Parameters: parameters, Wait: wait})
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	result := m.Result
	return &result, nil
}

// Calls returns the recorded trigger requests.
func (m *MockTrigger) Calls() []TriggerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TriggerCall(nil), m.calls...)
}
