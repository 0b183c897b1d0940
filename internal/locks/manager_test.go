package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalManager_AcquireRelease(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	lock, err := m.Acquire(ctx, "deploy-prod")
	require.NoError(t, err)
	assert.Equal(t, "deploy-prod", lock.Resource())

	require.NoError(t, lock.Release(ctx))

	// Resource is free again.
	lock2, err := m.Acquire(ctx, "deploy-prod")
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx))
}

func TestLocalManager_IndependentResources(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	a, err := m.Acquire(ctx, "resource-a")
	require.NoError(t, err)
	defer a.Release(ctx)

	// A different resource is not blocked.
	done := make(chan struct{})
	go func() {
		b, err := m.Acquire(ctx, "resource-b")
		assert.NoError(t, err)
		b.Release(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent resource acquisition blocked")
	}
}

func TestLocalManager_FIFOOrder(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	first, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// Start waiters one at a time so their queue positions are fixed.
	for i := 1; i <= 3; i++ {
		i := i
		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			lock, err := m.Acquire(ctx, "shared")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			lock.Release(ctx)
		}()
		<-started
		time.Sleep(20 * time.Millisecond)
	}

	first.Release(ctx)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order, "waiters must be granted the lock in arrival order")
}

func TestLocalManager_AcquireCancelled(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	held, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(cancelCtx, "shared")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned waiter must not wedge the queue.
	require.NoError(t, held.Release(ctx))
	lock, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)
	lock.Release(ctx)
}

func TestLocalLock_DoubleRelease(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	lock, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))

	// A double release must not grant the lock to a phantom holder.
	next, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)

	blocked, blockedCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer blockedCancel()
	_, err = m.Acquire(blocked, "shared")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	next.Release(ctx)
}
