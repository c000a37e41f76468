package notion

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is the single retry loop shared by every API call site.
// Delays grow as min(BaseDelay * 2^attempt, MaxDelay) with no jitter.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Errors it rejects are returned immediately.
	Retryable func(error) bool

	// OnRetry is called before sleeping between attempts.
	OnRetry func(err error, wait time.Duration)
}

// DefaultRetryPolicy retries rate-limit errors up to 6 attempts,
// starting at 500ms and capping each wait at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Retryable:   IsRateLimited,
	}
}

// newBackOff returns the exponential schedule described by the policy.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return b
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsRateLimited(err)
	}
	return p.Retryable(err)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.OnRetry(err, wait)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
