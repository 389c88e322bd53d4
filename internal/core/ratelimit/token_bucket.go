package ratelimit

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket admits a burst of capacity and then refills one slot every
// interval/capacity.
type TokenBucket struct {
	capacity int
	interval time.Duration
	clock    func() time.Time
	limiter  *rate.Limiter

	closed context.Context
	close  context.CancelFunc

	waiting  atomic.Int64
	admitted atomic.Uint64
}

var _ Limiter = (*TokenBucket)(nil)

// NewTokenBucket validates the configuration and builds a token bucket.
func NewTokenBucket(capacity int, interval time.Duration, opts ...Option) (*TokenBucket, error) {
	if err := validate(capacity, interval); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	limit := rate.Limit(float64(capacity) / interval.Seconds())

	closed, closeFn := context.WithCancel(context.Background())
	return &TokenBucket{
		capacity: capacity,
		interval: interval,
		clock:    o.clock,
		limiter:  rate.NewLimiter(limit, capacity),
		closed:   closed,
		close:    closeFn,
	}, nil
}

// Acquire waits for a token, the caller's context, or shutdown.
func (b *TokenBucket) Acquire(ctx context.Context) (Permit, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Permit{}, cancelled(err)
	}
	if b.closed.Err() != nil {
		return Permit{}, ErrLimiterClosed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.closed, cancel)
	defer stop()

	b.waiting.Add(1)
	err := b.limiter.Wait(waitCtx)
	b.waiting.Add(-1)

	if err != nil {
		if b.closed.Err() != nil {
			return Permit{}, ErrLimiterClosed
		}
		return Permit{}, cancelled(err)
	}

	return Permit{
		Sequence:   b.admitted.Add(1),
		AdmittedAt: b.clock(),
	}, nil
}

// Shutdown fails in-flight and future waits with ErrLimiterClosed.
func (b *TokenBucket) Shutdown() {
	b.close()
}

// Stats reports whole tokens currently available.
func (b *TokenBucket) Stats() Stats {
	tokens := int(math.Floor(b.limiter.Tokens()))
	if tokens < 0 {
		tokens = 0
	}
	if tokens > b.capacity {
		tokens = b.capacity
	}

	return Stats{
		Policy:    PolicyTokenBucket,
		Capacity:  b.capacity,
		Interval:  b.interval,
		Available: tokens,
		Waiting:   int(b.waiting.Load()),
		Admitted:  b.admitted.Load(),
		Closed:    b.closed.Err() != nil,
	}
}
