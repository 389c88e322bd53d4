package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// FixedWindow grants up to capacity slots per interval. A background
// goroutine resets the budget on every tick and hands slots to queued
// callers in arrival order.
type FixedWindow struct {
	capacity int
	interval time.Duration
	clock    func() time.Time
	ticks    <-chan time.Time
	stopTick func()

	mu        sync.Mutex
	available int
	window    uint64
	admitted  uint64
	abandoned uint64
	queue     *list.List
	closed    bool

	stop     chan struct{}
	done     chan struct{}
	shutdown sync.Once
}

type waiter struct {
	ready   chan struct{}
	granted bool
	permit  Permit
}

var _ Limiter = (*FixedWindow)(nil)

// NewFixedWindow validates the configuration and starts the replenishment
// goroutine. Nothing is started when validation fails.
func NewFixedWindow(capacity int, interval time.Duration, opts ...Option) (*FixedWindow, error) {
	if err := validate(capacity, interval); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	l := &FixedWindow{
		capacity:  capacity,
		interval:  interval,
		clock:     o.clock,
		ticks:     o.ticks,
		available: capacity,
		queue:     list.New(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if l.ticks == nil {
		ticker := time.NewTicker(interval)
		l.ticks = ticker.C
		l.stopTick = ticker.Stop
	}

	go l.run()
	return l, nil
}

func (l *FixedWindow) run() {
	defer close(l.done)
	if l.stopTick != nil {
		defer l.stopTick()
	}

	for {
		select {
		case <-l.stop:
			return
		case <-l.ticks:
			l.replenish()
		}
	}
}

func (l *FixedWindow) replenish() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.window++
	l.available = l.capacity
	l.dispatchLocked()
}

// dispatchLocked hands free slots to queued waiters, oldest first.
func (l *FixedWindow) dispatchLocked() {
	for l.available > 0 {
		front := l.queue.Front()
		if front == nil {
			return
		}
		w := l.queue.Remove(front).(*waiter)
		l.available--
		w.granted = true
		w.permit = l.permitLocked()
		close(w.ready)
	}
}

func (l *FixedWindow) permitLocked() Permit {
	l.admitted++
	return Permit{
		Window:     l.window,
		Sequence:   l.admitted,
		AdmittedAt: l.clock(),
	}
}

// Acquire takes a slot from the current window or waits in line for a later one.
func (l *FixedWindow) Acquire(ctx context.Context) (Permit, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Permit{}, cancelled(err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Permit{}, ErrLimiterClosed
	}
	// Arrivals never overtake queued callers.
	if l.available > 0 && l.queue.Len() == 0 {
		l.available--
		permit := l.permitLocked()
		l.mu.Unlock()
		return permit, nil
	}
	w := &waiter{ready: make(chan struct{})}
	elem := l.queue.PushBack(w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		if !w.granted {
			return Permit{}, ErrLimiterClosed
		}
		return w.permit, nil
	case <-ctx.Done():
		l.abandon(w, elem)
		return Permit{}, cancelled(ctx.Err())
	}
}

// abandon removes a cancelled waiter. A slot granted concurrently goes to the
// next waiter, but only while its window is still current.
func (l *FixedWindow) abandon(w *waiter, elem *list.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !w.granted {
		l.queue.Remove(elem)
		return
	}
	l.abandoned++
	if l.closed || w.permit.Window != l.window {
		return
	}
	l.available++
	l.dispatchLocked()
}

// Shutdown stops the ticker and fails all waiters with ErrLimiterClosed.
func (l *FixedWindow) Shutdown() {
	l.shutdown.Do(func() {
		l.mu.Lock()
		l.closed = true
		for front := l.queue.Front(); front != nil; front = l.queue.Front() {
			w := l.queue.Remove(front).(*waiter)
			close(w.ready)
		}
		l.mu.Unlock()

		close(l.stop)
		<-l.done
	})
}

// Stats reports the current window and queue depth.
func (l *FixedWindow) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Policy:    PolicyFixedWindow,
		Capacity:  l.capacity,
		Interval:  l.interval,
		Available: l.available,
		Waiting:   l.queue.Len(),
		Window:    l.window,
		Admitted:  l.admitted - l.abandoned,
		Closed:    l.closed,
	}
}
