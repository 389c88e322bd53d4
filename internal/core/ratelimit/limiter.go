// Package ratelimit admits at most a fixed number of operations per time
// interval, blocking callers that exceed the budget until capacity returns.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Limiter gates operations against a per-interval budget.
type Limiter interface {
	// Acquire blocks until a slot is granted, the context ends, or the
	// limiter is shut down. Slots are never released by the caller.
	Acquire(ctx context.Context) (Permit, error)
	// Shutdown stops replenishment and fails every current and future waiter
	// with ErrLimiterClosed. Safe to call more than once.
	Shutdown()
	// Stats returns a point-in-time snapshot.
	Stats() Stats
}

// Policy names an admission strategy.
type Policy string

const (
	PolicyFixedWindow Policy = "fixed_window"
	PolicyTokenBucket Policy = "token_bucket"
)

// ParsePolicy resolves a policy name; empty selects the fixed window.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "fixed", "fixed_window", "fixed-window":
		return PolicyFixedWindow, nil
	case "token", "token_bucket", "token-bucket":
		return PolicyTokenBucket, nil
	default:
		return "", fmt.Errorf("%w: unknown policy %q", ErrInvalidConfiguration, value)
	}
}

// Permit describes an admission. It carries no release handle.
type Permit struct {
	// Window is the replenishment cycle the slot was taken from (fixed window only).
	Window uint64
	// Sequence numbers grants over the limiter's lifetime, starting at 1.
	// A grant dropped by a cancelled caller keeps its number, so gaps occur.
	Sequence   uint64
	AdmittedAt time.Time
}

// Stats is a snapshot of limiter state.
type Stats struct {
	Policy    Policy        `json:"policy"`
	Capacity  int           `json:"capacity"`
	Interval  time.Duration `json:"interval_ns"`
	Available int           `json:"available"`
	Waiting   int           `json:"waiting"`
	Window    uint64        `json:"window"`
	// Admitted counts callers that received a permit. Grants dropped by a
	// cancelled caller are excluded.
	Admitted  uint64        `json:"admitted"`
	Closed    bool          `json:"closed"`
}

// Config selects and sizes a limiter.
type Config struct {
	Policy   Policy
	Capacity int
	Interval time.Duration
}

// New builds the limiter described by cfg.
func New(cfg Config, opts ...Option) (Limiter, error) {
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	switch policy {
	case PolicyTokenBucket:
		return NewTokenBucket(cfg.Capacity, cfg.Interval, opts...)
	default:
		return NewFixedWindow(cfg.Capacity, cfg.Interval, opts...)
	}
}

// Option customises limiter construction.
type Option func(*options)

type options struct {
	clock func() time.Time
	ticks <-chan time.Time
}

// WithClock overrides the clock used to stamp permits.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTickSource drives fixed-window replenishment from ch instead of an
// internal ticker. Each receive on ch starts a new window.
func WithTickSource(ch <-chan time.Time) Option {
	return func(o *options) {
		o.ticks = ch
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock == nil {
		o.clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

var timeUnits = map[string]time.Duration{
	"NANOSECONDS":  time.Nanosecond,
	"NS":           time.Nanosecond,
	"MICROSECONDS": time.Microsecond,
	"US":           time.Microsecond,
	"MILLISECONDS": time.Millisecond,
	"MS":           time.Millisecond,
	"SECONDS":      time.Second,
	"S":            time.Second,
	"MINUTES":      time.Minute,
	"M":            time.Minute,
	"HOURS":        time.Hour,
	"H":            time.Hour,
	"DAYS":         24 * time.Hour,
	"D":            24 * time.Hour,
}

// ParseTimeUnit converts a unit name such as SECONDS or ms into the length
// of one unit.
func ParseTimeUnit(value string) (time.Duration, error) {
	key := strings.ToUpper(strings.TrimSpace(value))
	if unit, ok := timeUnits[key]; ok {
		return unit, nil
	}
	if unit, ok := timeUnits[key+"S"]; ok {
		return unit, nil
	}
	return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidConfiguration, value)
}
