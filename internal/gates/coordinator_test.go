package gates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
)

func waitPending(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if len(c.ListPending()) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("gate never registered as pending")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCoordinator_Approve(t *testing.T) {
	c := NewCoordinator(nil)
	gate := &pipeline.InputGate{Message: "deploy to prod?", Approvers: []string{"alice"}}

	type result struct {
		d   *Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := c.Wait(context.Background(), "run-1", "Approve", gate)
		done <- result{d, err}
	}()

	waitPending(t, c)
	require.NoError(t, c.Resolve(Event{
		RunID:      "run-1",
		StageName:  "Approve",
		Approver:   "alice",
		Approved:   true,
		Parameters: map[string]string{"TARGET": "prod"},
	}))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "alice", r.d.Approver)
	assert.Equal(t, "prod", r.d.Parameters["TARGET"])
}

func TestCoordinator_Deny(t *testing.T) {
	c := NewCoordinator(nil)
	gate := &pipeline.InputGate{Message: "deploy?", Approvers: []string{"alice"}}

	done := make(chan error, 1)
	go func() {
		_, err := c.Wait(context.Background(), "run-1", "Approve", gate)
		done <- err
	}()

	waitPending(t, c)
	require.NoError(t, c.Resolve(Event{RunID: "run-1", StageName: "Approve", Approver: "alice", Approved: false}))

	err := <-done
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGateDenied))
}

func TestCoordinator_RejectsUnauthorizedApprover(t *testing.T) {
	c := NewCoordinator(nil)
	gate := &pipeline.InputGate{Message: "deploy?", Approvers: []string{"alice"}}

	done := make(chan error, 1)
	go func() {
		_, err := c.Wait(context.Background(), "run-1", "Approve", gate)
		done <- err
	}()

	waitPending(t, c)

	// Mallory's submission is rejected and the gate stays open.
	err := c.Resolve(Event{RunID: "run-1", StageName: "Approve", Approver: "mallory", Approved: true})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
	assert.Len(t, c.ListPending(), 1)

	// Alice can still approve afterwards.
	require.NoError(t, c.Resolve(Event{RunID: "run-1", StageName: "Approve", Approver: "alice", Approved: true}))
	require.NoError(t, <-done)
}

func TestCoordinator_GateTimeout(t *testing.T) {
	c := NewCoordinator(nil)
	gate := &pipeline.InputGate{Message: "deploy?", Timeout: 50 * time.Millisecond}

	_, err := c.Wait(context.Background(), "run-1", "Approve", gate)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeGateTimeout))
	assert.Empty(t, c.ListPending())
}

func TestCoordinator_ResolveUnknownGate(t *testing.T) {
	c := NewCoordinator(nil)

	err := c.Resolve(Event{RunID: "run-x", StageName: "Approve", Approver: "alice", Approved: true})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestCoordinator_ContextCancel(t *testing.T) {
	c := NewCoordinator(nil)
	gate := &pipeline.InputGate{Message: "deploy?"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Wait(ctx, "run-1", "Approve", gate)
		done <- err
	}()

	waitPending(t, c)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
