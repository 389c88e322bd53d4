package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration is returned when a limiter is built with a
	// non-positive capacity or interval.
	ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")
	// ErrLimiterClosed is returned by Acquire once Shutdown has been called.
	ErrLimiterClosed = errors.New("rate limiter closed")
	// ErrAcquireCancelled is returned when the caller's context ends before a
	// slot is granted. The context error is wrapped alongside it.
	ErrAcquireCancelled = errors.New("acquire cancelled")
)

func cancelled(cause error) error {
	if cause == nil {
		return ErrAcquireCancelled
	}
	return fmt.Errorf("%w: %w", ErrAcquireCancelled, cause)
}

func validate(capacity int, interval time.Duration) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfiguration, capacity)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfiguration, interval)
	}
	return nil
}
