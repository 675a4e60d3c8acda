package transport

import (
	"context"
	"errors"
	"time"
)

// nonRetryableError marks failures that must not be retried, such as
// upstream 4xx responses.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// nonRetryable wraps an error so withRetry fails immediately.
func nonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// withRetry runs fn up to maxAttempts times. The delay before attempt
// n+1 is baseDelay*n, so waits grow strictly with each failure. It
// returns the number of attempts made and the last error, unwrapped
// from any non-retryable marker.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(attempt int) error) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		var nre *nonRetryableError
		if errors.As(err, &nre) {
			return attempt, nre.err
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(baseDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return maxAttempts, lastErr
}
