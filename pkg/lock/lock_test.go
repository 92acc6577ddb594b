package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockSerializes(t *testing.T) {
	l := NewMemory()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "order:ORD-1", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "critical section must never overlap")
}

func TestMemoryLockIndependentKeys(t *testing.T) {
	l := NewMemory()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "order:A", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// A different key must not block behind order:A.
	err := l.WithLock(context.Background(), "order:B", func(context.Context) error { return nil })
	require.NoError(t, err)
	close(release)
}

func TestMemoryLockCancelledContext(t *testing.T) {
	l := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := l.WithLock(ctx, "order:A", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
