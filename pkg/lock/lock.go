// Package lock provides mutual exclusion keyed by string, used to serialize
// webhook processing per order. Two implementations are provided: an
// in-process locker for single-instance deployments and tests, and a
// Redis-based locker for multi-instance deployments.
package lock

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
)

// ErrNotAcquired is returned when a lock could not be obtained before the
// context deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Memory is an in-process Locker. Locks are striped per key and never
// expire; a crashed holder releases on process exit by definition.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*sync.Mutex)}
}

// WithLock acquires the per-key mutex, runs fn, and releases it.
func (m *Memory) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
