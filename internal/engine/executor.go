package engine

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/runner"
	"conveyor/internal/storage"
)

// executeStage runs one stage and everything under it, returning its
// terminal status. path is the slash-separated position of the stage in
// the tree and keys its result.
func (e *Engine) executeStage(ctx context.Context, run *pipeline.Run, stage *pipeline.Stage, env *pipeline.Environment, path string) pipeline.StageStatus {
	// A seeded result from a resumed run means this subtree already ran.
	if prior, ok := run.Result(path); ok && (prior.Status == pipeline.StagePassed || prior.Status == pipeline.StageSkipped) {
		return prior.Status
	}

	stageEnv := env
	if len(stage.Env) > 0 {
		stageEnv = env.Overlay(stage.Env)
	}

	// A false when-condition skips the whole subtree with no side effects:
	// no steps, no lock acquisition, no gate.
	if stage.When != nil && !stage.When(stageEnv) {
		result := &pipeline.StageResult{
			Stage:      path,
			Status:     pipeline.StageSkipped,
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}
		run.SetResult(result)
		e.saveResult(run.ID, result)
		e.logger.Debug("stage skipped", logging.String("run_id", run.ID), logging.String("stage", path))
		return pipeline.StageSkipped
	}

	if stage.Resource != "" {
		lock, err := e.locks.Acquire(ctx, stage.Resource)
		if err != nil {
			return e.failStage(ctx, run, path, time.Now(), "", err)
		}
		defer lock.Release(context.Background())
	}

	if stage.Gate != nil {
		gateEnv, status := e.waitForGate(ctx, run, stage, stageEnv, path)
		if status != "" {
			return status
		}
		stageEnv = gateEnv
	}

	switch stage.Kind {
	case pipeline.Leaf:
		return e.executeLeaf(ctx, run, stage, stageEnv, path)
	case pipeline.Sequential:
		return e.executeSequential(ctx, run, stage, stageEnv, path)
	case pipeline.Parallel:
		return e.executeParallel(ctx, run, stage, stageEnv, path)
	default:
		return e.failStage(ctx, run, path, time.Now(), "",
			errors.ValidationError("unknown stage kind"))
	}
}

// waitForGate parks the run at the stage's approval gate. On approval it
// returns the environment with the gate's parameters applied and an empty
// status; on denial, timeout or cancellation it records the stage outcome
// and returns the terminal status.
func (e *Engine) waitForGate(ctx context.Context, run *pipeline.Run, stage *pipeline.Stage, env *pipeline.Environment, path string) (*pipeline.Environment, pipeline.StageStatus) {
	started := time.Now()

	run.SetStatus(pipeline.RunPausedForInput)
	e.saveRun(run)
	e.savePendingGate(run.ID, stage, path)

	decision, err := e.gates.Wait(ctx, run.ID, stage.Name, stage.Gate)

	run.SetStatus(pipeline.RunRunning)
	e.clearPendingGate(run.ID)
	e.saveRun(run)

	if err != nil {
		// Denial and gate timeout fail the stage with their typed error;
		// cancellation is classified by failStage against the context.
		return nil, e.failStage(ctx, run, path, started, "", err)
	}

	gateEnv := env.Overlay(nil)
	if len(stage.Gate.Parameters) > 0 {
		resolved, err := pipeline.ResolveParameters(stage.Gate.Parameters, decision.Parameters)
		if err != nil {
			return nil, e.failStage(ctx, run, path, started, "", err)
		}
		gateEnv.SetAll(resolved)
	} else if len(decision.Parameters) > 0 {
		gateEnv.SetAll(decision.Parameters)
	}
	gateEnv.Set("APPROVED_BY", decision.Approver)

	return gateEnv, ""
}

// executeLeaf runs the stage's steps in order under the stage timeout.
func (e *Engine) executeLeaf(ctx context.Context, run *pipeline.Run, stage *pipeline.Stage, env *pipeline.Environment, path string) pipeline.StageStatus {
	started := time.Now()

	timeout := stage.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	leafCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		leafCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := &pipeline.StageResult{
		Stage:     path,
		Status:    pipeline.StageRunning,
		StartedAt: started,
	}
	run.SetResult(result)

	// Step-scoped env entries persist for later steps in the same leaf.
	leafEnv := env.Overlay(nil)

	var transcript strings.Builder
	var failure error

	for i := range stage.Steps {
		step := &stage.Steps[i]
		if len(step.Env) > 0 {
			leafEnv.SetAll(step.Env)
		}

		output, err := e.executeStep(leafCtx, step, leafEnv)
		if output != "" {
			transcript.WriteString(output)
			if !strings.HasSuffix(output, "\n") {
				transcript.WriteString("\n")
			}
		}

		if err != nil {
			if step.ContinueOnError && leafCtx.Err() == nil {
				e.logger.Warn("step failed, continuing",
					logging.String("run_id", run.ID),
					logging.String("stage", path),
					logging.String("step", step.Describe()),
					logging.Err(err))
				continue
			}
			failure = err
			break
		}
	}

	finished := time.Now()
	result = &pipeline.StageResult{
		Stage:      path,
		StartedAt:  started,
		FinishedAt: finished,
		Output:     transcript.String(),
	}

	switch {
	case failure == nil:
		result.Status = pipeline.StagePassed
	case leafCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		// The stage's own timeout fired.
		result.Status = pipeline.StageTimedOut
		result.Error = errors.TimeoutError("stage " + stage.Name).Error()
	case ctx.Err() == context.DeadlineExceeded:
		// The run's global timeout cancelled this stage.
		result.Status = pipeline.StageTimedOut
		result.Error = errors.TimeoutError("run").Error()
	default:
		result.Status = pipeline.StageFailed
		result.Error = failure.Error()
	}

	run.SetResult(result)
	e.saveResult(run.ID, result)

	e.logger.Info("stage finished",
		logging.String("run_id", run.ID),
		logging.String("stage", path),
		logging.String("status", string(result.Status)),
		logging.Duration("duration", finished.Sub(started)))

	return result.Status
}

// executeStep runs a single step: a shell command through the runner or a
// structured action.
func (e *Engine) executeStep(ctx context.Context, step *pipeline.Step, env *pipeline.Environment) (string, error) {
	if step.Action != nil {
		var emitted strings.Builder
		sc := &pipeline.StepContext{
			Env:         env,
			Workdir:     e.workdir,
			Artifacts:   e.artifacts,
			Deployments: e.deployments,
			Emit: func(message string) {
				emitted.WriteString(message)
				e.logger.Info("pipeline message", logging.String("message", message))
			},
		}
		output, err := step.Action.Execute(ctx, sc)
		if err != nil {
			return emitted.String(), err
		}
		return output, nil
	}

	command := env.Expand(step.Command)
	result, err := e.runner.Run(ctx, runner.CommandSpec{
		Command: command,
		Dir:     e.workdir,
		Env:     env.Flatten(),
	})
	if err != nil {
		if result != nil {
			return result.Output, err
		}
		return "", err
	}
	if result.ExitCode != 0 {
		return result.Output, errors.StepFailureError(step.Describe(), result.ExitCode, nil)
	}
	return result.Output, nil
}

// executeSequential runs children strictly in order. A failed child
// short-circuits the rest, which are recorded as SKIPPED, unless the graph
// opts into continuing after failures.
func (e *Engine) executeSequential(ctx context.Context, run *pipeline.Run, stage *pipeline.Stage, env *pipeline.Environment, path string) pipeline.StageStatus {
	started := time.Now()
	statuses := make([]pipeline.StageStatus, 0, len(stage.Children))

	shortCircuited := false
	for _, child := range stage.Children {
		childPath := path + "/" + child.Name

		if shortCircuited {
			result := &pipeline.StageResult{
				Stage:      childPath,
				Status:     pipeline.StageSkipped,
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			}
			run.SetResult(result)
			e.saveResult(run.ID, result)
			statuses = append(statuses, pipeline.StageSkipped)
			continue
		}

		status := e.executeStage(ctx, run, child, env, childPath)
		statuses = append(statuses, status)

		if status.Failed() && !run.Graph.ContinueAfterFailure {
			shortCircuited = true
		}
		if ctx.Err() != nil {
			shortCircuited = true
		}
	}

	return e.recordComposite(run, path, started, statuses)
}

// executeParallel starts all children concurrently and joins on every one
// of them. A child failure never cancels its running siblings; the
// composite outcome is aggregated only after the full join.
func (e *Engine) executeParallel(ctx context.Context, run *pipeline.Run, stage *pipeline.Stage, env *pipeline.Environment, path string) pipeline.StageStatus {
	started := time.Now()
	statuses := make([]pipeline.StageStatus, len(stage.Children))

	var group errgroup.Group
	for i, child := range stage.Children {
		i, child := i, child
		childPath := path + "/" + child.Name
		// Each branch gets its own environment frame so concurrent writes
		// cannot race on the shared parent scope.
		branchEnv := env.Overlay(nil)
		group.Go(func() error {
			statuses[i] = e.executeStage(ctx, run, child, branchEnv, childPath)
			return nil
		})
	}
	group.Wait()

	return e.recordComposite(run, path, started, statuses)
}

// recordComposite aggregates child statuses into the composite stage's
// result: any timeout dominates, then any failure; a composite whose
// children all skipped is itself skipped; otherwise it passed.
func (e *Engine) recordComposite(run *pipeline.Run, path string, started time.Time, statuses []pipeline.StageStatus) pipeline.StageStatus {
	aggregate := pipeline.StageSkipped
	sawTimeout, sawFailure, sawPass := false, false, false
	for _, s := range statuses {
		switch s {
		case pipeline.StageTimedOut:
			sawTimeout = true
		case pipeline.StageFailed:
			sawFailure = true
		case pipeline.StagePassed:
			sawPass = true
		}
	}
	switch {
	case sawTimeout:
		aggregate = pipeline.StageTimedOut
	case sawFailure:
		aggregate = pipeline.StageFailed
	case sawPass:
		aggregate = pipeline.StagePassed
	}

	result := &pipeline.StageResult{
		Stage:      path,
		Status:     aggregate,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	run.SetResult(result)
	e.saveResult(run.ID, result)
	return aggregate
}

// failStage records a stage failure caused by infrastructure rather than
// step execution (lock acquisition, gate errors, unknown kinds).
func (e *Engine) failStage(ctx context.Context, run *pipeline.Run, path string, started time.Time, output string, err error) pipeline.StageStatus {
	status := pipeline.StageFailed
	if ctx.Err() == context.DeadlineExceeded {
		status = pipeline.StageTimedOut
	}

	result := &pipeline.StageResult{
		Stage:      path,
		Status:     status,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Output:     output,
		Error:      err.Error(),
	}
	run.SetResult(result)
	e.saveResult(run.ID, result)

	e.logger.Warn("stage failed",
		logging.String("run_id", run.ID),
		logging.String("stage", path),
		logging.Err(err))

	return status
}

func (e *Engine) savePendingGate(runID string, stage *pipeline.Stage, path string) {
	if e.store == nil {
		return
	}
	err := e.store.SavePendingGate(&storage.PendingGateRecord{
		RunID:     runID,
		StagePath: path,
		StageName: stage.Name,
		Message:   stage.Gate.Message,
		Approvers: stage.Gate.Approvers,
	})
	if err != nil {
		e.logger.Error("failed to persist pending gate", err,
			logging.String("run_id", runID))
	}
}

func (e *Engine) clearPendingGate(runID string) {
	if e.store == nil {
		return
	}
	if err := e.store.ClearPendingGate(runID); err != nil {
		e.logger.Error("failed to clear pending gate", err,
			logging.String("run_id", runID))
	}
}
