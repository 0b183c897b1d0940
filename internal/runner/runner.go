// Package runner executes external commands for pipeline steps. The engine
// depends only on the Runner interface; the exec-backed implementation
// spawns a shell, captures combined output and honors context cancellation
// with a bounded kill grace period.
package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"
)

// CommandSpec describes one external command invocation.
type CommandSpec struct {
	Command string   // shell command line, run via sh -c
	Dir     string   // working directory; empty uses the process default
	Env     []string // KEY=VALUE pairs appended to the base environment
}

// CommandResult captures the outcome of an external command.
type CommandResult struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands. Implementations must stop the running
// process promptly when the context is cancelled.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandResult, error)
}

// ExecRunner runs commands through the system shell.
type ExecRunner struct {
	// GracePeriod bounds how long a process may linger between the
	// interrupt on cancellation and the force kill.
	GracePeriod time.Duration

	// InheritEnv controls whether the orchestrator's own environment is
	// passed through underneath the step environment.
	InheritEnv bool
}

// NewExecRunner creates a runner with a 10 second kill grace period.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		GracePeriod: 10 * time.Second,
		InheritEnv:  true,
	}
}

// Run executes the command and returns its combined output and exit code.
// A nonzero exit is not an error here - the caller decides what a nonzero
// exit means. The returned error covers spawn failures and cancellation.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	if r.InheritEnv {
		cmd.Env = append(os.Environ(), spec.Env...)
	} else {
		cmd.Env = spec.Env
	}

	// Send an interrupt first so the process can clean up; force-kill
	// after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	if r.GracePeriod > 0 {
		cmd.WaitDelay = r.GracePeriod
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := &CommandResult{
		Output:   out.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Process ran and exited nonzero; report the code, not an error.
			result.ExitCode = exitErr.ExitCode()
			if ctx.Err() != nil {
				// Cancellation killed the process; surface the context error
				// so timeouts are distinguishable from ordinary failures.
				return result, ctx.Err()
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.ExitCode = -1
		return result, err
	}

	return result, nil
}
