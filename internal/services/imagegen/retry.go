package imagegen

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 5 * time.Second
)

// Retrying wraps a provider with fixed-delay retries. Context cancellation
// stops the retry loop immediately.
type Retrying struct {
	inner    Provider
	attempts int
	delay    time.Duration
	sleeper  func(time.Duration)
}

// RetryOption customizes the retry wrapper.
type RetryOption func(*Retrying)

// WithAttempts overrides the total attempt count (defaults to 3).
func WithAttempts(attempts int) RetryOption {
	return func(r *Retrying) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// WithDelay overrides the delay between attempts.
func WithDelay(delay time.Duration) RetryOption {
	return func(r *Retrying) {
		if delay >= 0 {
			r.delay = delay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) RetryOption {
	return func(r *Retrying) {
		if sleeper != nil {
			r.sleeper = sleeper
		}
	}
}

// NewRetrying wraps the provider with retry behavior.
func NewRetrying(inner Provider, opts ...RetryOption) *Retrying {
	r := &Retrying{
		inner:    inner,
		attempts: defaultRetryAttempts,
		delay:    defaultRetryDelay,
		sleeper:  time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name reports the wrapped provider's identifier.
func (r *Retrying) Name() string { return r.inner.Name() }

// Generate delegates to the wrapped provider, retrying failures up to the
// configured attempt count.
func (r *Retrying) Generate(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.inner.Generate(ctx, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt < r.attempts {
			r.sleeper(r.delay)
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", r.attempts, lastErr)
}
