package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	const capacity = 3
	s, err := New(capacity)
	require.NoError(t, err)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			defer tok.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			assert.Less(t, tok.Slot, capacity)
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), peak.Load())
	assert.Zero(t, s.InFlight())
	assert.Zero(t, s.Waiting())
}

func TestScheduler_SlotsAreUniqueAndReused(t *testing.T) {
	s, err := New(2)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := s.Acquire(ctx)
	require.NoError(t, err)
	b, err := s.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Slot)
	assert.Equal(t, 1, b.Slot)
	assert.Equal(t, "slot-1", b.Actor())
	assert.Equal(t, 2, s.InFlight())

	a.Release()
	a.Release() // no-op
	assert.Equal(t, 1, s.InFlight())

	c, err := s.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Slot)
	b.Release()
	c.Release()
	assert.Zero(t, s.InFlight())
}

func TestScheduler_CancelWhileWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(1)
	require.NoError(t, err)
	held, err := s.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Acquire(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return s.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, s.Waiting())
	assert.Equal(t, 1, s.InFlight())

	held.Release()
	assert.Zero(t, s.InFlight())
}

func TestScheduler_FIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(1)
	require.NoError(t, err)
	held, err := s.Acquire(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tok, err := s.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			tok.Release()
		}(i)
		// Queue waiters one at a time so arrival order is known.
		require.Eventually(t, func() bool { return s.Waiting() == i+1 }, time.Second, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	held.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
