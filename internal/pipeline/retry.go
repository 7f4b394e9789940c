package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mattjoyce/commitgate/internal/upstream"
)

// RetryPolicy bounds retries of transient upstream failures.
type RetryPolicy struct {
	MaxAttempts int // total attempts, including the first
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.BackoffBase > 0 {
		eb.InitialInterval = p.BackoffBase
	}
	if p.BackoffMax > 0 {
		eb.MaxInterval = p.BackoffMax
	}
	// The invocation budget bounds elapsed time, not the backoff.
	eb.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// withRetry runs fn until it succeeds, fails permanently, exhausts the
// policy or ctx ends. It returns the number of attempts made.
func withRetry[T any](ctx context.Context, policy RetryPolicy, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, int, error) {
	attempts := 0
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempts++
		v, err := fn(ctx)
		if err != nil && !upstream.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy.backOff(ctx), func(err error, wait time.Duration) {
		logger.Warn("transient upstream failure, retrying",
			"op", op,
			"attempt", attempts,
			"backoff", wait.String(),
			"error", err,
		)
	})
	return v, attempts, err
}
