package worker

import (
	"context"
	"errors"
	"time"
)

const maxRetryDelay = 10 * time.Second

type (
	// BackoffPolicy describes the retry schedule for transient failures
	// in enrichment and persistence.
	BackoffPolicy struct {
		// MaxAttempts is the total number of attempts, including the first.
		MaxAttempts int

		// BaseDelay is the delay before the first retry; subsequent delays
		// double from it.
		BaseDelay time.Duration

		// MaxDelay clamps the exponential growth.
		MaxDelay time.Duration
	}

	// SleepFunc waits for d or until ctx is done. Injectable so tests can
	// retry without real delays.
	SleepFunc func(ctx context.Context, d time.Duration) error
)

// NewBackoffPolicy builds the pipeline's retry schedule from configuration.
func NewBackoffPolicy(maxAttempts int, baseDelay time.Duration) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxRetryDelay,
	}
}

// Delay returns the backoff delay before retry attempt n (1-based: the delay
// after the n-th failed attempt). The schedule is BaseDelay doubling each
// retry, clamped to [BaseDelay, MaxDelay].
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if delay > p.MaxDelay {
		return p.MaxDelay
	}

	return delay
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps an error so Retry stops immediately and returns the
// wrapped error as-is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// Retry runs op up to p.MaxAttempts times, sleeping per the backoff schedule
// between attempts. Failures before the last attempt are silent; the last
// error is returned on exhaustion. A Permanent error or context cancellation
// stops the attempts immediately.
func Retry(ctx context.Context, p BackoffPolicy, sleep SleepFunc, op func(ctx context.Context) error) error {
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == p.MaxAttempts {
			break
		}

		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// sleepContext waits for d unless ctx is done first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
