// Package locks serializes pipeline stages that declare a named resource.
// Acquire blocks until the resource is free; waiters are granted the lock
// in arrival order. A local in-process manager covers single-node
// deployments and a redsync-backed manager coordinates across instances.
package locks

import (
	"context"
	"sync"
)

// Lock is a held resource lock.
type Lock interface {
	// Resource returns the name of the locked resource.
	Resource() string

	// Release frees the resource and hands it to the next waiter.
	// It is safe to call Release more than once.
	Release(ctx context.Context) error
}

// Manager hands out exclusive locks on named resources.
type Manager interface {
	// Acquire blocks until the resource lock is granted or ctx is done.
	Acquire(ctx context.Context, resource string) (Lock, error)

	// Close releases every lock held through this manager.
	Close() error
}

// LocalManager is an in-process lock manager with strict FIFO handoff:
// when a lock is released, the longest-waiting acquirer gets it next.
type LocalManager struct {
	mu     sync.Mutex
	queues map[string]*resourceQueue
	closed bool
}

type resourceQueue struct {
	held    bool
	waiters []chan struct{}
}

// NewLocalManager creates an empty local lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{queues: make(map[string]*resourceQueue)}
}

// Acquire blocks until the resource is free. Waiters are served strictly
// in the order they called Acquire.
func (m *LocalManager) Acquire(ctx context.Context, resource string) (Lock, error) {
	m.mu.Lock()
	q, ok := m.queues[resource]
	if !ok {
		q = &resourceQueue{}
		m.queues[resource] = q
	}

	if !q.held {
		q.held = true
		m.mu.Unlock()
		return &localLock{manager: m, resource: resource}, nil
	}

	grant := make(chan struct{}, 1)
	q.waiters = append(q.waiters, grant)
	m.mu.Unlock()

	select {
	case <-grant:
		return &localLock{manager: m, resource: resource}, nil
	case <-ctx.Done():
		m.abandon(resource, grant)
		return nil, ctx.Err()
	}
}

// abandon removes a waiter that gave up. If the grant raced with a
// release, ownership already passed to this waiter and must move on to
// the next one.
func (m *LocalManager) abandon(resource string, grant chan struct{}) {
	m.mu.Lock()
	q := m.queues[resource]
	if q != nil {
		for i, w := range q.waiters {
			if w == grant {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				m.mu.Unlock()
				return
			}
		}
	}
	m.mu.Unlock()

	select {
	case <-grant:
		m.release(resource)
	default:
	}
}

func (m *LocalManager) release(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[resource]
	if q == nil {
		return
	}
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		next <- struct{}{}
		return
	}
	q.held = false
	delete(m.queues, resource)
}

// Close drops all queues. Pending waiters are left to their contexts.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = make(map[string]*resourceQueue)
	m.closed = true
	return nil
}

type localLock struct {
	manager  *LocalManager
	resource string
	once     sync.Once
}

func (l *localLock) Resource() string {
	return l.resource
}

func (l *localLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.manager.release(l.resource)
	})
	return nil
}
