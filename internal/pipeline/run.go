package pipeline

import (
	"sync"
	"time"
)

// StageResult captures the outcome of one stage. It is written only by the
// stage's own execution and read by the engine for aggregation and by post
// hooks for reporting.
type StageResult struct {
	Stage      string      `json:"stage"` // slash-separated path from the root
	Status     StageStatus `json:"status"`
	StartedAt  time.Time   `json:"startedAt,omitempty"`
	FinishedAt time.Time   `json:"finishedAt,omitempty"`
	Output     string      `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Run is one execution instance of a pipeline graph. Run state is owned by
// the executing engine; concurrent readers go through the accessor methods.
type Run struct {
	ID         string
	Graph      *Graph
	Env        *Environment
	Parameters map[string]string

	mu         sync.RWMutex
	status     RunStatus
	timedOut   bool
	startedAt  time.Time
	finishedAt time.Time
	results    map[string]*StageResult
}

// NewRun creates a pending run for the given graph.
func NewRun(id string, graph *Graph, env *Environment, parameters map[string]string) *Run {
	return &Run{
		ID:         id,
		Graph:      graph,
		Env:        env,
		Parameters: parameters,
		status:     RunPending,
		results:    make(map[string]*StageResult),
	}
}

// Status returns the run's current aggregate status.
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus updates the run's aggregate status and stamps start/finish times.
func (r *Run) SetStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	switch {
	case status == RunRunning && r.startedAt.IsZero():
		r.startedAt = time.Now()
	case status.Terminal():
		r.finishedAt = time.Now()
	}
}

// MarkTimedOut records that the run's global timeout fired.
func (r *Run) MarkTimedOut() {
	r.mu.Lock()
	r.timedOut = true
	r.mu.Unlock()
}

// TimedOut reports whether the global timeout fired for this run.
func (r *Run) TimedOut() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timedOut
}

// StartedAt returns when the run started executing.
func (r *Run) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// FinishedAt returns when the run reached a terminal status.
func (r *Run) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// SetResult records a stage result, keyed by the stage's path.
func (r *Run) SetResult(result *StageResult) {
	r.mu.Lock()
	r.results[result.Stage] = result
	r.mu.Unlock()
}

// Result returns the recorded result for a stage path.
func (r *Run) Result(stagePath string) (*StageResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[stagePath]
	return result, ok
}

// Results returns a copy of all recorded stage results.
func (r *Run) Results() map[string]*StageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[string]*StageResult, len(r.results))
	for k, v := range r.results {
		resultCopy := *v
		copied[k] = &resultCopy
	}
	return copied
}

// SeedResults preloads stage results from a previous interrupted run so the
// engine can resume, skipping stages that already passed.
func (r *Run) SeedResults(results map[string]*StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range results {
		resultCopy := *v
		r.results[k] = &resultCopy
	}
}
