package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v8"

	"conveyor/internal/common/errors"
	"conveyor/internal/redis"
)

// RedsyncManager coordinates resource locks across orchestrator instances
// using the Redlock algorithm from go-redsync. Held locks are renewed in
// the background at a third of their expiry so long stages keep ownership.
//
// Redlock grants contended locks by retry, not by queue position, so
// cross-instance fairness is best effort rather than strict FIFO. Within
// a single instance use LocalManager for strict ordering.
type RedsyncManager struct {
	redsync *redsync.Redsync
	expiry  time.Duration

	mu   sync.Mutex
	held map[string]*redsyncLock
}

// NewRedsyncManager creates a distributed lock manager on the given Redis
// client. expiry bounds how long a crashed instance can hold a resource.
func NewRedsyncManager(client *redis.Client, expiry time.Duration) (*RedsyncManager, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if expiry <= 0 {
		expiry = 30 * time.Second
	}

	pool := goredis.NewPool(client.Underlying())

	return &RedsyncManager{
		redsync: redsync.New(pool),
		expiry:  expiry,
		held:    make(map[string]*redsyncLock),
	}, nil
}

// Acquire blocks until the resource lock is granted or ctx is done.
func (m *RedsyncManager) Acquire(ctx context.Context, resource string) (Lock, error) {
	mutex := m.redsync.NewMutex(
		fmt.Sprintf("resource:%s", resource),
		redsync.WithExpiry(m.expiry),
		redsync.WithTries(1),
	)

	// Poll until granted. Redlock has no waiter queue, so contention is
	// resolved by retry rather than arrival order.
	for {
		err := mutex.LockContext(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &redsyncLock{
		mutex:    mutex,
		resource: resource,
		manager:  m,
		ctx:      lockCtx,
		cancel:   cancel,
	}

	m.mu.Lock()
	m.held[resource] = lock
	m.mu.Unlock()

	go m.renew(lock)

	return lock, nil
}

// renew extends the lock at a third of its expiry. If renewal fails the
// lock was lost and local state is cleaned up.
func (m *RedsyncManager) renew(lock *redsyncLock) {
	interval := m.expiry / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := lock.mutex.ExtendContext(ctx)
			cancel()

			if err != nil || !ok {
				m.drop(lock)
				return
			}
		}
	}
}

func (m *RedsyncManager) drop(lock *redsyncLock) {
	m.mu.Lock()
	delete(m.held, lock.resource)
	m.mu.Unlock()

	lock.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lock.mutex.UnlockContext(ctx)
}

// Close releases every lock held through this manager.
func (m *RedsyncManager) Close() error {
	m.mu.Lock()
	held := make([]*redsyncLock, 0, len(m.held))
	for _, lock := range m.held {
		held = append(held, lock)
	}
	m.held = make(map[string]*redsyncLock)
	m.mu.Unlock()

	for _, lock := range held {
		lock.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		lock.mutex.UnlockContext(ctx)
		cancel()
	}
	return nil
}

type redsyncLock struct {
	mutex    *redsync.Mutex
	resource string
	manager  *RedsyncManager
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

func (l *redsyncLock) Resource() string {
	return l.resource
}

func (l *redsyncLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.manager.drop(l)
	})
	return nil
}

var (
	_ Manager = (*LocalManager)(nil)
	_ Manager = (*RedsyncManager)(nil)
)
