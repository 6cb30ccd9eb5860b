package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_PerConversationOrder(t *testing.T) {
	m := NewManager(4, nil)
	defer m.Shutdown()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Acquire("conv-1", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
		// Waiting for each Acquire to return before submitting the next
		// guarantees the queue observes this submission order.
		wg.Wait()
	}

	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestAcquire_ConcurrencyCap(t *testing.T) {
	const maxConcurrent = 2
	m := NewManager(maxConcurrent, nil)
	defer m.Shutdown()

	var current int32
	var maxSeen int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		id := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Acquire(convID(id), func(ctx context.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					old := atomic.LoadInt32(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, int(maxSeen), maxConcurrent)
}

func TestAcquire_HandlerErrorSurfacesToCaller(t *testing.T) {
	m := NewManager(2, nil)
	defer m.Shutdown()

	wantErr := assertError("boom")
	err := m.Acquire("conv-err", func(ctx context.Context) error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
}

func TestStats_ReflectsQueueDepth(t *testing.T) {
	m := NewManager(1, nil)
	defer m.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.Acquire("conv-a", func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	go func() { _ = m.Acquire("conv-a", func(ctx context.Context) error { return nil }) }()
	time.Sleep(20 * time.Millisecond)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.GreaterOrEqual(t, stats.QueuedTotal, 1)

	close(block)
}

func convID(i int) string {
	return "conv-" + string(rune('a'+i))
}

type assertError string

func (e assertError) Error() string { return string(e) }
