// Package triggers implements the deployment trigger contract: handing a
// build off to a downstream job, either over HTTP to a remote orchestrator
// or in-process through the strategy router. It also hosts the cron
// scheduler for time-driven pipeline runs.
package triggers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
)

// HTTPTrigger submits downstream builds to a remote orchestrator with
// POST {base}/jobs/{jobRef}/build. The response carries the downstream
// run's identifier and status.
type HTTPTrigger struct {
	base   string
	client *http.Client
	token  string
}

// HTTPTriggerOption configures an HTTPTrigger.
type HTTPTriggerOption func(*HTTPTrigger)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPTriggerOption {
	return func(t *HTTPTrigger) { t.client = c }
}

// WithBearerToken sends the token on every request.
func WithBearerToken(token string) HTTPTriggerOption {
	return func(t *HTTPTrigger) { t.token = token }
}

// NewHTTPTrigger creates a trigger client for the orchestrator at base.
func NewHTTPTrigger(base string, opts ...HTTPTriggerOption) (*HTTPTrigger, error) {
	if base == "" {
		return nil, errors.ConfigError("trigger base URL is required")
	}
	t := &HTTPTrigger{
		base: strings.TrimRight(base, "/"),
		// Waited triggers block until the downstream run finishes, so the
		// client timeout must cover whole pipeline runs.
		client: &http.Client{Timeout: 4 * time.Hour},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type triggerRequest struct {
	Parameters map[string]string `json:"parameters,omitempty"`
	Wait       bool              `json:"wait,omitempty"`
}

// Trigger submits the downstream build. Transport failures and non-2xx
// responses surface as typed trigger errors carrying the job reference.
func (t *HTTPTrigger) Trigger(ctx context.Context, jobRef string, parameters map[string]string, wait bool) (*pipeline.TriggerResult, error) {
	if jobRef == "" {
		return nil, errors.ValidationError("job reference is required")
	}

	payload, err := json.Marshal(triggerRequest{Parameters: parameters, Wait: wait})
	if err != nil {
		return nil, errors.TriggerError(jobRef, err)
	}

	target := fmt.Sprintf("%s/jobs/%s/build", t.base, url.PathEscape(jobRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.TriggerError(jobRef, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.TriggerError(jobRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.TriggerError(jobRef, fmt.Errorf("downstream returned status %d", resp.StatusCode))
	}

	var result pipeline.TriggerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.TriggerError(jobRef, fmt.Errorf("decode response: %w", err))
	}
	return &result, nil
}

// Executor runs a pipeline graph; the engine satisfies this.
type Executor interface {
	Execute(ctx context.Context, graph *pipeline.Graph, parameters map[string]string) (*pipeline.Run, error)
}

// GraphResolver turns a job reference into a pipeline graph; the strategy
// router satisfies this through a small adapter in the wiring layer.
type GraphResolver func(jobRef string) (*pipeline.Graph, error)

// Local dispatches downstream builds in-process: the job reference is
// resolved to a graph and executed on this orchestrator. The executor is
// wired after construction because the engine itself holds the trigger.
type Local struct {
	resolve GraphResolver
	maxRun  time.Duration

	mu       sync.RWMutex
	executor Executor
}

// LocalOption configures a Local trigger.
type LocalOption func(*Local)

// WithMaxRunDuration bounds fire-and-forget downstream runs. The default
// is 4 hours.
func WithMaxRunDuration(d time.Duration) LocalOption {
	return func(l *Local) {
		if d > 0 {
			l.maxRun = d
		}
	}
}

// NewLocal creates an in-process trigger with the given graph resolver.
func NewLocal(resolve GraphResolver, opts ...LocalOption) *Local {
	l := &Local{resolve: resolve, maxRun: 4 * time.Hour}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetExecutor wires the executor that will run resolved graphs.
func (l *Local) SetExecutor(executor Executor) {
	l.mu.Lock()
	l.executor = executor
	l.mu.Unlock()
}

// Trigger resolves and runs the downstream job. When wait is false the
// run is started in the background and a QUEUED acknowledgment returned.
func (l *Local) Trigger(ctx context.Context, jobRef string, parameters map[string]string, wait bool) (*pipeline.TriggerResult, error) {
	l.mu.RLock()
	executor := l.executor
	l.mu.RUnlock()
	if executor == nil {
		return nil, errors.TriggerError(jobRef, fmt.Errorf("no executor wired"))
	}

	graph, err := l.resolve(jobRef)
	if err != nil {
		return nil, errors.TriggerError(jobRef, err)
	}

	if !wait {
		go func() {
			runCtx, cancel := context.WithTimeout(context.Background(), l.maxRun)
			defer cancel()
			executor.Execute(runCtx, graph, parameters)
		}()
		return &pipeline.TriggerResult{Status: "QUEUED"}, nil
	}

	run, err := executor.Execute(ctx, graph, parameters)
	if err != nil {
		return nil, errors.TriggerError(jobRef, err)
	}
	return &pipeline.TriggerResult{RunID: run.ID, Status: string(run.Status())}, nil
}
