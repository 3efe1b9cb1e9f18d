package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Veraticus/vatflow/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetry executes an operation with configurable retry behavior.
// The returned error wraps both ErrMaxRetries and the last operation error
// when every attempt fails.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == opts.MaxAttempts {
			break
		}

		delay := backoffDelay(opts, attempt)
		if errors.Is(err, ErrRateLimit) {
			delay = opts.MaxDelay
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, lastErr)
}

// backoffDelay computes the wait before the attempt following `attempt`.
func backoffDelay(opts service.RetryOptions, attempt int) time.Duration {
	var delay time.Duration
	if opts.Linear {
		delay = opts.InitialDelay * time.Duration(attempt)
	} else {
		delay = opts.InitialDelay
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * opts.Multiplier)
		}
	}
	if delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}

	if opts.Jitter > 0 {
		spread := float64(delay) * opts.Jitter
		delay += time.Duration(spread * (rand.Float64()*2 - 1))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
