// Package lock serializes work on a named resource.
package lock

import (
	"context"
	"sync"
)

// ReleaseFunc releases a held lock.
type ReleaseFunc func() error

// Locker hands out exclusive locks keyed by resource name.
type Locker interface {
	// Lock blocks until key is held by the caller or ctx is done.
	Lock(ctx context.Context, key string) (ReleaseFunc, error)
}

// Memory is an in-process Locker. Keys nobody holds or waits for are forgotten.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{
		locks: make(map[string]*entry),
	}
}

// Lock implements Locker.
func (m *Memory) Lock(ctx context.Context, key string) (ReleaseFunc, error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.forget(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() error {
		once.Do(func() {
			<-e.ch
			m.forget(key, e)
		})
		return nil
	}

	return release, nil
}

// Held reports the number of keys currently held or waited for.
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Memory) forget(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
