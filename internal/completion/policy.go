package completion

import (
	"context"
	"math"
	"time"

	"github.com/iishyfishyy/calais/internal/llm"
)

// RetryPolicy controls how failed attempts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	IdleTimeout    time.Duration // longest wait for a chunk before the attempt times out
	MaxEmptyChunks int           // consecutive blank chunks tolerated before the attempt stalls

	// Retryable overrides the default classification when set.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		BaseDelay:      time.Second,
		Multiplier:     2,
		MaxDelay:       30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxEmptyChunks: 100,
	}
}

// Backoff returns the delay before retry n, where n is 0 for the first retry.
func (p RetryPolicy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = d.IdleTimeout
	}
	if p.MaxEmptyChunks <= 0 {
		p.MaxEmptyChunks = d.MaxEmptyChunks
	}
	return p
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	return llm.KindOf(err).Retryable()
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
