// Package gates coordinates manual approval gates. A run that reaches a
// gated stage parks in the coordinator until an operator submits a
// decision or the gate's timeout elapses.
package gates

import (
	"context"
	"sync"
	"time"

	"conveyor/internal/common/errors"
	"conveyor/internal/common/logging"
	"conveyor/internal/pipeline"
)

// Decision is the outcome of a resolved gate.
type Decision struct {
	Approver   string            `json:"approver"`
	Approved   bool              `json:"approved"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Event is an operator's submission against a pending gate.
type Event struct {
	RunID      string            `json:"runId"`
	StageName  string            `json:"stageName"`
	Approver   string            `json:"approver"`
	Approved   bool              `json:"approved"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Pending describes a gate currently waiting for input.
type Pending struct {
	RunID     string    `json:"runId"`
	StageName string    `json:"stageName"`
	Message   string    `json:"message"`
	Approvers []string  `json:"approvers,omitempty"`
	Since     time.Time `json:"since"`
}

type waiter struct {
	gate     *pipeline.InputGate
	pending  Pending
	decision chan Decision
}

// Coordinator tracks pending gates and delivers decisions to the stage
// executions blocked on them.
type Coordinator struct {
	mu      sync.Mutex
	waiting map[string]*waiter
	logger  logging.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Coordinator{
		waiting: make(map[string]*waiter),
		logger:  logger,
	}
}

func key(runID, stageName string) string {
	return runID + "\x00" + stageName
}

// Wait blocks until the gate is resolved, its timeout elapses, or ctx is
// done. A denial and a timeout are reported as typed errors so the caller
// can mark the stage accordingly.
func (c *Coordinator) Wait(ctx context.Context, runID, stageName string, gate *pipeline.InputGate) (*Decision, error) {
	w := &waiter{
		gate: gate,
		pending: Pending{
			RunID:     runID,
			StageName: stageName,
			Message:   gate.Message,
			Approvers: gate.Approvers,
			Since:     time.Now(),
		},
		decision: make(chan Decision, 1),
	}

	k := key(runID, stageName)
	c.mu.Lock()
	if _, exists := c.waiting[k]; exists {
		c.mu.Unlock()
		return nil, errors.ConflictError("pending gate " + stageName)
	}
	c.waiting[k] = w
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiting, k)
		c.mu.Unlock()
	}()

	c.logger.Info("gate waiting for input",
		logging.String("run_id", runID),
		logging.String("stage", stageName))

	var timeout <-chan time.Time
	if gate.Timeout > 0 {
		timer := time.NewTimer(gate.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d := <-w.decision:
		if !d.Approved {
			return nil, errors.GateDeniedError(stageName, d.Approver)
		}
		return &d, nil
	case <-timeout:
		return nil, errors.GateTimeoutError(stageName)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers an operator decision to the matching pending gate. A
// submission from an approver the gate does not allow is rejected and the
// gate stays open.
func (c *Coordinator) Resolve(event Event) error {
	k := key(event.RunID, event.StageName)

	c.mu.Lock()
	w, ok := c.waiting[k]
	c.mu.Unlock()
	if !ok {
		return errors.NotFoundError("pending gate " + event.StageName)
	}

	if !w.gate.Allows(event.Approver) {
		return errors.AuthError("approver " + event.Approver + " is not allowed to resolve this gate")
	}

	d := Decision{
		Approver:   event.Approver,
		Approved:   event.Approved,
		Parameters: event.Parameters,
	}
	select {
	case w.decision <- d:
		c.logger.Info("gate resolved",
			logging.String("run_id", event.RunID),
			logging.String("stage", event.StageName),
			logging.String("approver", event.Approver),
			logging.Bool("approved", event.Approved))
		return nil
	default:
		return errors.ConflictError("gate decision for " + event.StageName)
	}
}

// ListPending returns the gates currently waiting for input.
func (c *Coordinator) ListPending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]Pending, 0, len(c.waiting))
	for _, w := range c.waiting {
		pending = append(pending, w.pending)
	}
	return pending
}
