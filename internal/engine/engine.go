// Package engine executes pipeline graphs. It walks the stage tree,
// applies environment scoping, enforces stage and run timeouts, pauses at
// approval gates and aggregates stage statuses into the run outcome.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
	"conveyor/internal/common/utils"
	"conveyor/internal/gates"
	"conveyor/internal/locks"
	"conveyor/internal/notify"
	"conveyor/internal/pipeline"
	"conveyor/internal/runner"
	"conveyor/internal/storage"
)

// Options wires the engine's collaborators. Runner is required; everything
// else degrades gracefully when absent (no persistence, no locks, no
// notifications).
type Options struct {
	Runner      runner.Runner
	Gates       *gates.Coordinator
	Storage     storage.Storage
	Locks       locks.Manager
	Artifacts   pipeline.ArtifactStore
	Deployments pipeline.DeploymentTrigger
	Notifier    notify.Notifier
	Logger      logging.Logger

	// Workdir is the base directory for step commands.
	Workdir string

	// DefaultStageTimeout applies to leaf stages that declare none.
	// Zero leaves such stages unbounded.
	DefaultStageTimeout time.Duration

	// MaxRunDuration bounds background runs started by Submit. Zero
	// falls back to DefaultMaxRunDuration.
	MaxRunDuration time.Duration
}

// DefaultMaxRunDuration bounds background runs that declare no graph
// timeout of their own.
const DefaultMaxRunDuration = 4 * time.Hour

// Engine runs pipeline graphs to completion.
type Engine struct {
	runner      runner.Runner
	gates       *gates.Coordinator
	store       storage.Storage
	locks       locks.Manager
	artifacts   pipeline.ArtifactStore
	deployments pipeline.DeploymentTrigger
	notifier    notify.Notifier
	logger      logging.Logger

	workdir        string
	defaultTimeout time.Duration
	maxRun         time.Duration
}

// New creates an engine from its options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	gateCoordinator := opts.Gates
	if gateCoordinator == nil {
		gateCoordinator = gates.NewCoordinator(logger)
	}
	lockManager := opts.Locks
	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}
	maxRun := opts.MaxRunDuration
	if maxRun <= 0 {
		maxRun = DefaultMaxRunDuration
	}

	return &Engine{
		runner:         opts.Runner,
		gates:          gateCoordinator,
		store:          opts.Storage,
		locks:          lockManager,
		artifacts:      opts.Artifacts,
		deployments:    opts.Deployments,
		notifier:       opts.Notifier,
		logger:         logger,
		workdir:        opts.Workdir,
		defaultTimeout: opts.DefaultStageTimeout,
		maxRun:         maxRun,
	}
}

// Gates exposes the approval coordinator so the API layer can resolve
// pending gates.
func (e *Engine) Gates() *gates.Coordinator {
	return e.gates
}

// Execute validates the graph, resolves parameters and runs the stage tree
// to a terminal status. The returned run carries all stage results; the
// error reports engine-level problems (invalid graph, bad parameters), not
// stage failures, which are reflected in the run status.
func (e *Engine) Execute(ctx context.Context, graph *pipeline.Graph, parameters map[string]string) (*pipeline.Run, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	resolved, err := pipeline.ResolveParameters(graph.Parameters, parameters)
	if err != nil {
		return nil, err
	}

	run := pipeline.NewRun(utils.MustGenerateRunID(), graph, e.rootEnv(graph, resolved), resolved)
	if err := e.createRunRecord(run); err != nil {
		return nil, err
	}

	return run, e.execute(ctx, run)
}

// Submit validates and registers a run, then executes it in the
// background. The run identifier is returned immediately so callers can
// poll for status or approve gates.
func (e *Engine) Submit(ctx context.Context, graph *pipeline.Graph, parameters map[string]string) (string, error) {
	if err := graph.Validate(); err != nil {
		return "", err
	}

	resolved, err := pipeline.ResolveParameters(graph.Parameters, parameters)
	if err != nil {
		return "", err
	}

	run := pipeline.NewRun(utils.MustGenerateRunID(), graph, e.rootEnv(graph, resolved), resolved)
	if err := e.createRunRecord(run); err != nil {
		return "", err
	}

	// The run outlives the submission request. Keep the caller's
	// context values but detach from its cancellation.
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.maxRun)
		defer cancel()
		if err := e.execute(runCtx, run); err != nil {
			e.logger.Error("background run failed", err,
				logging.String("run_id", run.ID))
		}
	}()

	return run.ID, nil
}

// Resume continues a run that was interrupted while paused at an approval
// gate. Stages that already passed or were skipped are not re-executed;
// the run re-parks at the gate and waits for a fresh decision.
func (e *Engine) Resume(ctx context.Context, runID string, graph *pipeline.Graph) (*pipeline.Run, error) {
	if e.store == nil {
		return nil, errors.ConfigError("resuming runs requires persistent storage")
	}

	record, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}

	results, err := e.store.GetStageResults(runID)
	if err != nil {
		return nil, err
	}

	run := pipeline.NewRun(runID, graph, e.rootEnv(graph, record.Parameters), record.Parameters)
	seed := make(map[string]*pipeline.StageResult, len(results))
	for _, r := range results {
		status := pipeline.StageStatus(r.Status)
		if status == pipeline.StagePassed || status == pipeline.StageSkipped {
			seed[r.Path] = &pipeline.StageResult{
				Stage:      r.Path,
				Status:     status,
				StartedAt:  r.StartedAt,
				FinishedAt: r.FinishedAt,
				Output:     r.Output,
				Error:      r.Error,
			}
		}
	}
	run.SeedResults(seed)

	e.logger.Info("resuming run",
		logging.String("run_id", runID),
		logging.Int("completed_stages", len(seed)))

	return run, e.execute(ctx, run)
}

// execute drives a prepared run to a terminal status.
func (e *Engine) execute(ctx context.Context, run *pipeline.Run) error {
	graph := run.Graph

	run.SetStatus(pipeline.RunRunning)
	e.saveRun(run)

	runCtx := ctx
	var cancel context.CancelFunc
	if graph.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, graph.Timeout)
		defer cancel()
	}

	started := time.Now()
	rootStatus := e.executeStage(runCtx, run, graph.Root, run.Env, graph.Root.Name)

	switch {
	case ctx.Err() != nil:
		// The caller cancelled the run from outside.
		run.SetStatus(pipeline.RunAborted)
	case runCtx.Err() == context.DeadlineExceeded:
		run.MarkTimedOut()
		run.SetStatus(pipeline.RunFailure)
	case rootStatus == pipeline.StageTimedOut:
		run.MarkTimedOut()
		run.SetStatus(pipeline.RunFailure)
	case rootStatus.Failed():
		run.SetStatus(pipeline.RunFailure)
	default:
		// PASSED or SKIPPED roots both count as success.
		run.SetStatus(pipeline.RunSuccess)
	}

	e.runPostHooks(run)
	e.saveRun(run)
	e.notifyFinished(run, time.Since(started))

	return nil
}

// rootEnv builds the run's root environment frame: graph declarations
// overlaid with the resolved parameter values.
func (e *Engine) rootEnv(graph *pipeline.Graph, parameters map[string]string) *pipeline.Environment {
	env := pipeline.NewEnvironment(graph.Env)
	if len(parameters) > 0 {
		env = env.Overlay(parameters)
	}
	return env
}

// runPostHooks executes the graph's post hooks with a fresh context so
// they run even when the stage tree timed out or was cancelled. Hook
// failures are recorded but never change the run outcome.
func (e *Engine) runPostHooks(run *pipeline.Run) {
	graph := run.Graph

	hooks := append([]*pipeline.Stage(nil), graph.Post.Always...)
	if run.Status() == pipeline.RunSuccess {
		hooks = append(hooks, graph.Post.Success...)
	} else {
		hooks = append(hooks, graph.Post.Failure...)
	}
	if len(hooks) == 0 {
		return
	}

	hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for _, hook := range hooks {
		status := e.executeStage(hookCtx, run, hook, run.Env, "post/"+hook.Name)
		if status.Failed() {
			e.logger.Warn("post hook failed",
				logging.String("run_id", run.ID),
				logging.String("hook", hook.Name))
		}
	}
}

func (e *Engine) notifyFinished(run *pipeline.Run, duration time.Duration) {
	if e.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := notify.Event{
		RunID:    run.ID,
		Pipeline: run.Graph.Name,
		Status:   string(run.Status()),
		ExitCode: pipeline.ExitCode(run),
		TimedOut: run.TimedOut(),
		Duration: duration,
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("run notification failed",
			logging.String("run_id", run.ID),
			logging.Err(err))
	}
}

// createRunRecord persists the initial run record, including a snapshot of
// the stage tree for later inspection.
func (e *Engine) createRunRecord(run *pipeline.Run) error {
	if e.store == nil {
		return nil
	}

	snapshot, err := json.Marshal(run.Graph.Root.Snapshot())
	if err != nil {
		return err
	}

	return e.store.CreateRun(&storage.RunRecord{
		ID:           run.ID,
		Pipeline:     run.Graph.Name,
		Status:       string(run.Status()),
		Parameters:   run.Parameters,
		Environment:  run.Env.Snapshot(),
		RootSnapshot: snapshot,
	})
}

func (e *Engine) saveRun(run *pipeline.Run) {
	if e.store == nil {
		return
	}

	record := &storage.RunRecord{
		ID:          run.ID,
		Pipeline:    run.Graph.Name,
		Status:      string(run.Status()),
		TimedOut:    run.TimedOut(),
		Parameters:  run.Parameters,
		Environment: run.Env.Snapshot(),
	}
	if finished := run.FinishedAt(); !finished.IsZero() {
		record.FinishedAt = &finished
	}

	if err := e.store.UpdateRun(record); err != nil {
		e.logger.Error("failed to persist run", err,
			logging.String("run_id", run.ID))
	}
}

func (e *Engine) saveResult(runID string, result *pipeline.StageResult) {
	if e.store == nil {
		return
	}

	err := e.store.SaveStageResult(runID, &storage.StageResultRecord{
		Path:       result.Stage,
		Status:     string(result.Status),
		Output:     result.Output,
		Error:      result.Error,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	})
	if err != nil {
		e.logger.Error("failed to persist stage result", err,
			logging.String("run_id", runID),
			logging.String("stage", result.Stage))
	}
}
