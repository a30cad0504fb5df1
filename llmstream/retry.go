package llmstream

import (
	"context"
	"time"
)

// RetryPolicy configures fixed-interval retry behavior.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Interval    time.Duration // fixed wait between attempts
	OnRetry     func(err error, attempt int)
}

// DefaultRetryPolicy returns the default policy: three attempts with a
// fixed three-second interval between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Interval:    3 * time.Second,
	}
}

// Retry executes fn until it succeeds or the policy is exhausted. Each
// attempt calls fn fresh; nothing from a failed attempt carries over.
// Only retryable errors are retried.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 1; attempt < policy.MaxAttempts; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(policy.Interval):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
