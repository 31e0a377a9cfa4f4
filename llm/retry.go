package llm

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls how transient provider failures are retried.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; min 1
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // upper bound on any single delay
	Multiplier  float64       // backoff growth factor per retry
	Jitter      bool          // randomize each delay by +/- 50%
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy allows two retries with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2,
		Jitter:      true,
	}
}

// backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) backoff(retry int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
	}
	if ceiling := float64(p.MaxDelay); d > ceiling {
		d = ceiling
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// delayFor picks the wait before the next attempt. A rate limit's
// Retry-After hint overrides the backoff schedule; ok is false when the
// hint exceeds MaxDelay and the error should surface instead of waiting.
func (p RetryPolicy) delayFor(err error, retry int) (delay time.Duration, ok bool) {
	if rl, isRateLimit := err.(*RateLimitError); isRateLimit && rl.RetryAfter != nil {
		hint := time.Duration(*rl.RetryAfter * float64(time.Second))
		if hint > p.MaxDelay {
			return 0, false
		}
		return hint, true
	}
	return p.backoff(retry), true
}

// WithRetry wraps a provider adapter so failures classified retryable by
// IsRetryable are retried per policy. Retry lives below the loop: the
// orchestrator sees one Complete call per step regardless of attempts.
func WithRetry(inner ProviderAdapter, policy RetryPolicy) ProviderAdapter {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retryAdapter{inner: inner, policy: policy}
}

type retryAdapter struct {
	inner  ProviderAdapter
	policy RetryPolicy
}

func (a *retryAdapter) Name() string { return a.inner.Name() }

func (a *retryAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := a.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		if attempt >= a.policy.MaxAttempts || !IsRetryable(err) {
			return nil, err
		}
		delay, ok := a.policy.delayFor(err, attempt)
		if !ok {
			return nil, err
		}
		if a.policy.OnRetry != nil {
			a.policy.OnRetry(err, attempt, delay)
		}

		select {
		case <-ctx.Done():
			return nil, &AbortError{ClientError: ClientError{
				Message: "request cancelled while waiting to retry",
				Cause:   ctx.Err(),
			}}
		case <-time.After(delay):
		}
	}
}

// Close forwards to the wrapped adapter when it holds resources.
func (a *retryAdapter) Close() error {
	if closer, ok := a.inner.(Closer); ok {
		return closer.Close()
	}
	return nil
}
