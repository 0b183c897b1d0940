package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/redis"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedsyncManager_AcquireRelease(t *testing.T) {
	m, err := NewRedsyncManager(newTestRedisClient(t), 30*time.Second)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	lock, err := m.Acquire(ctx, "deploy-prod")
	require.NoError(t, err)
	assert.Equal(t, "deploy-prod", lock.Resource())

	require.NoError(t, lock.Release(ctx))

	lock2, err := m.Acquire(ctx, "deploy-prod")
	require.NoError(t, err)
	lock2.Release(ctx)
}

func TestRedsyncManager_ContendedAcquireWaits(t *testing.T) {
	m, err := NewRedsyncManager(newTestRedisClient(t), 30*time.Second)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	lock, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := m.Acquire(ctx, "shared")
		assert.NoError(t, err)
		close(acquired)
		second.Release(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(200 * time.Millisecond):
	}

	lock.Release(ctx)

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestRedsyncManager_AcquireCancelled(t *testing.T) {
	m, err := NewRedsyncManager(newTestRedisClient(t), 30*time.Second)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	lock, err := m.Acquire(ctx, "shared")
	require.NoError(t, err)
	defer lock.Release(ctx)

	cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(cancelCtx, "shared")
	assert.Error(t, err)
}

func TestRedsyncManager_RequiresClient(t *testing.T) {
	_, err := NewRedsyncManager(nil, time.Second)
	assert.Error(t, err)
}
