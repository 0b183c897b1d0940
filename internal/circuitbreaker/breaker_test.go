package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := New("test", DefaultConfig())

	calls := 0
	err := cb.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "closed", cb.State())
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", Config{MaxFailures: 3, Timeout: time.Minute, SuccessThreshold: 1})

	boom := fmt.Errorf("boom")
	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	}
	assert.Equal(t, "open", cb.State())

	// The guarded function must not run while the breaker is open.
	calls := 0
	err := cb.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestExecute_RecoversAfterTimeout(t *testing.T) {
	cb := New("test", Config{MaxFailures: 1, Timeout: 50 * time.Millisecond, SuccessThreshold: 1})

	require.Error(t, cb.Execute(context.Background(), func() error { return fmt.Errorf("boom") }))
	assert.Equal(t, "open", cb.State())

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, "closed", cb.State())
}

func TestExecute_HonorsCancelledContext(t *testing.T) {
	cb := New("test", DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
