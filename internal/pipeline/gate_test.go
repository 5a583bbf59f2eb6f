package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_NeverExceedsCapacity(t *testing.T) {
	const (
		capacity   = 2
		requesters = 10
	)

	g := NewGate(capacity)
	ctx := context.Background()

	var current, peak int64
	var wg sync.WaitGroup

	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(ctx))
			defer g.Release()

			holders := atomic.AddInt64(&current, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if holders <= old || atomic.CompareAndSwapInt64(&peak, old, holders) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(capacity))
	assert.Equal(t, capacity, g.Capacity())
}

func TestGate_AcquireFailsOnCancelledContext(t *testing.T) {
	g := NewGate(1)
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx))

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Acquire(cancelled))

	// The held slot is still usable after release.
	g.Release()
	assert.NoError(t, g.Acquire(ctx))
	g.Release()
}

func TestController_GatesAreIndependent(t *testing.T) {
	c := NewController(1, 1)
	ctx := context.Background()

	require.NoError(t, c.Render.Acquire(ctx))
	// Exhausting the render gate must not block transcription admission.
	assert.NoError(t, c.Transcribe.Acquire(ctx))

	c.Render.Release()
	c.Transcribe.Release()
}
