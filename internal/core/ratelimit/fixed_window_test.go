package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManualLimiter(t *testing.T, capacity int) (*FixedWindow, chan time.Time) {
	t.Helper()
	ticks := make(chan time.Time)
	limiter, err := NewFixedWindow(capacity, time.Second, WithTickSource(ticks))
	require.NoError(t, err)
	t.Cleanup(limiter.Shutdown)
	return limiter, ticks
}

func waitForWaiting(t *testing.T, limiter Limiter, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return limiter.Stats().Waiting == n
	}, 2*time.Second, time.Millisecond)
}

func TestNewFixedWindowRejectsInvalidConfiguration(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		interval time.Duration
	}{
		{name: "zero capacity", capacity: 0, interval: time.Second},
		{name: "negative capacity", capacity: -1, interval: time.Second},
		{name: "zero interval", capacity: 1, interval: 0},
		{name: "negative interval", capacity: 1, interval: -time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limiter, err := NewFixedWindow(tc.capacity, tc.interval)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
			require.Nil(t, limiter)
		})
	}
}

func TestAcquireAdmitsUpToCapacity(t *testing.T) {
	limiter, ticks := newManualLimiter(t, 3)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limiter.Acquire(context.Background())
			if err == nil {
				admitted.Add(1)
			}
		}()
	}

	waitForWaiting(t, limiter, 2)
	require.Equal(t, int32(3), admitted.Load())
	require.Equal(t, 0, limiter.Stats().Available)

	ticks <- time.Now()
	wg.Wait()

	require.Equal(t, int32(5), admitted.Load())
	stats := limiter.Stats()
	require.Equal(t, 1, stats.Available)
	require.Equal(t, uint64(1), stats.Window)
	require.Equal(t, uint64(5), stats.Admitted)
}

func TestTickRestoresCapacity(t *testing.T) {
	limiter, ticks := newManualLimiter(t, 2)

	for i := 0; i < 2; i++ {
		_, err := limiter.Acquire(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 0, limiter.Stats().Available)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return limiter.Stats().Available == 2
	}, time.Second, time.Millisecond)

	// Idle ticks never push the budget above capacity.
	ticks <- time.Now()
	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return limiter.Stats().Window == 3
	}, time.Second, time.Millisecond)
	require.Equal(t, 2, limiter.Stats().Available)
}

func TestQueuedCallersAdmittedInArrivalOrder(t *testing.T) {
	limiter, ticks := newManualLimiter(t, 1)

	_, err := limiter.Acquire(context.Background())
	require.NoError(t, err)

	const callers = 5
	order := make(chan int, callers)
	windows := make([]uint64, callers)
	for i := 0; i < callers; i++ {
		go func(id int) {
			permit, err := limiter.Acquire(context.Background())
			if err == nil {
				windows[id] = permit.Window
				order <- id
			}
		}(i)
		waitForWaiting(t, limiter, i+1)
	}

	for tick := 1; tick <= callers; tick++ {
		ticks <- time.Now()
		select {
		case id := <-order:
			assert.Equal(t, tick-1, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("no caller admitted after tick %d", tick)
		}
	}

	for i, window := range windows {
		assert.Equal(t, uint64(i+1), window)
	}
	require.Equal(t, 0, limiter.Stats().Waiting)
}

func TestNeverExceedsCapacityPerWindow(t *testing.T) {
	const (
		capacity = 4
		workers  = 16
		perCall  = 5
	)
	limiter, err := NewFixedWindow(capacity, 5*time.Millisecond)
	require.NoError(t, err)
	defer limiter.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	perWindow := make(map[uint64]int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCall; j++ {
				permit, err := limiter.Acquire(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				perWindow[permit.Window]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	total := 0
	for window, count := range perWindow {
		total += count
		assert.LessOrEqualf(t, count, capacity, "window %d admitted %d", window, count)
	}
	require.Equal(t, workers*perCall, total)
}

func TestShutdownWakesAllWaiters(t *testing.T) {
	limiter, _ := newManualLimiter(t, 1)

	_, err := limiter.Acquire(context.Background())
	require.NoError(t, err)

	const waiters = 3
	results := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := limiter.Acquire(context.Background())
			results <- err
		}()
	}
	waitForWaiting(t, limiter, waiters)

	limiter.Shutdown()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-results:
			require.ErrorIs(t, err, ErrLimiterClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter not released by shutdown")
		}
	}

	_, err = limiter.Acquire(context.Background())
	require.ErrorIs(t, err, ErrLimiterClosed)
	require.True(t, limiter.Stats().Closed)
}

func TestShutdownIsIdempotent(t *testing.T) {
	limiter, err := NewFixedWindow(1, time.Millisecond)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		limiter.Shutdown()
		limiter.Shutdown()
	})
}

func TestAcquireCancelledLeavesLimiterUsable(t *testing.T) {
	limiter, ticks := newManualLimiter(t, 1)

	_, err := limiter.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := limiter.Acquire(ctx)
		result <- err
	}()
	waitForWaiting(t, limiter, 1)

	cancel()
	err = <-result
	require.ErrorIs(t, err, ErrAcquireCancelled)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, limiter.Stats().Waiting)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return limiter.Stats().Available == 1
	}, time.Second, time.Millisecond)

	_, err = limiter.Acquire(context.Background())
	require.NoError(t, err)
}

func TestAcquireWithDoneContextFailsFast(t *testing.T) {
	limiter, _ := newManualLimiter(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Acquire(ctx)
	require.ErrorIs(t, err, ErrAcquireCancelled)
	require.Equal(t, 1, limiter.Stats().Available)
}

func TestCancelledGrantPassesSlotOn(t *testing.T) {
	limiter, _ := newManualLimiter(t, 1)

	_, err := limiter.Acquire(context.Background())
	require.NoError(t, err)

	first := &waiter{ready: make(chan struct{})}
	second := &waiter{ready: make(chan struct{})}
	limiter.mu.Lock()
	firstElem := limiter.queue.PushBack(first)
	limiter.queue.PushBack(second)
	limiter.window++
	limiter.available = limiter.capacity
	limiter.dispatchLocked()
	limiter.mu.Unlock()

	require.True(t, first.granted)
	require.False(t, second.granted)

	limiter.abandon(first, firstElem)

	require.True(t, second.granted)
	require.Equal(t, uint64(3), second.permit.Sequence)

	stats := limiter.Stats()
	require.Equal(t, 0, stats.Available)
	require.Equal(t, 0, stats.Waiting)
	require.Equal(t, uint64(2), stats.Admitted)
}

func TestAdmittedExcludesAbandonedGrants(t *testing.T) {
	limiter, ticks := newManualLimiter(t, 1)

	_, err := limiter.Acquire(context.Background())
	require.NoError(t, err)

	// A grant lost to a cancelled caller after its window closed is not
	// passed on, and must not count as an admission either.
	w := &waiter{ready: make(chan struct{})}
	limiter.mu.Lock()
	elem := limiter.queue.PushBack(w)
	limiter.window++
	limiter.available = limiter.capacity
	limiter.dispatchLocked()
	limiter.window++
	limiter.mu.Unlock()
	require.True(t, w.granted)

	limiter.abandon(w, elem)
	require.Equal(t, uint64(1), limiter.Stats().Admitted)

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return limiter.Stats().Available == 1
	}, time.Second, time.Millisecond)

	_, err = limiter.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2), limiter.Stats().Admitted)
}

func TestRealTickerRefillsAfterInterval(t *testing.T) {
	const interval = 50 * time.Millisecond
	limiter, err := NewFixedWindow(1, interval)
	require.NoError(t, err)
	defer limiter.Shutdown()

	start := time.Now()
	_, err = limiter.Acquire(context.Background())
	require.NoError(t, err)

	_, err = limiter.Acquire(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), interval-5*time.Millisecond)
}

func TestNewSelectsPolicy(t *testing.T) {
	limiter, err := New(Config{Capacity: 2, Interval: time.Second})
	require.NoError(t, err)
	defer limiter.Shutdown()
	require.Equal(t, PolicyFixedWindow, limiter.Stats().Policy)

	bucket, err := New(Config{Policy: PolicyTokenBucket, Capacity: 2, Interval: time.Second})
	require.NoError(t, err)
	defer bucket.Shutdown()
	require.Equal(t, PolicyTokenBucket, bucket.Stats().Policy)

	_, err = New(Config{Policy: "leaky", Capacity: 2, Interval: time.Second})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = New(Config{Capacity: 0, Interval: time.Second})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseTimeUnit(t *testing.T) {
	cases := map[string]time.Duration{
		"SECONDS":      time.Second,
		"seconds":      time.Second,
		"second":       time.Second,
		"ms":           time.Millisecond,
		"MILLISECONDS": time.Millisecond,
		"minutes":      time.Minute,
		"DAYS":         24 * time.Hour,
	}
	for input, want := range cases {
		got, err := ParseTimeUnit(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := ParseTimeUnit("fortnights")
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}
