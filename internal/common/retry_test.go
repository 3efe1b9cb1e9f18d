package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/service"
)

// recordSleeps replaces sleep for the duration of the test and returns the
// requested delays.
func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &delays
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		opts    service.RetryOptions
		attempt int
		want    time.Duration
	}{
		{
			name:    "linear first attempt",
			opts:    service.RetryOptions{InitialDelay: 400 * time.Millisecond, MaxDelay: time.Minute, Linear: true},
			attempt: 1,
			want:    400 * time.Millisecond,
		},
		{
			name:    "linear third attempt",
			opts:    service.RetryOptions{InitialDelay: 400 * time.Millisecond, MaxDelay: time.Minute, Linear: true},
			attempt: 3,
			want:    1200 * time.Millisecond,
		},
		{
			name:    "exponential",
			opts:    service.RetryOptions{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Minute, Multiplier: 2},
			attempt: 3,
			want:    400 * time.Millisecond,
		},
		{
			name:    "capped at max delay",
			opts:    service.RetryOptions{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Linear: true},
			attempt: 5,
			want:    2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backoffDelay(tt.opts, tt.attempt))
		})
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	opts := service.RetryOptions{
		InitialDelay: 400 * time.Millisecond,
		MaxDelay:     time.Minute,
		Linear:       true,
		Jitter:       0.25,
	}

	for range 200 {
		d := backoffDelay(opts, 2)
		assert.GreaterOrEqual(t, d, 600*time.Millisecond)
		assert.LessOrEqual(t, d, 1000*time.Millisecond)
	}

	opts.Jitter = 5
	for range 200 {
		assert.GreaterOrEqual(t, backoffDelay(opts, 1), time.Duration(0))
	}
}

func TestWithRetry_LinearSchedule(t *testing.T) {
	delays := recordSleeps(t)
	calls := 0
	boom := errors.New("upstream 503")

	err := WithRetry(context.Background(), func() error {
		calls++
		return boom
	}, service.RetryOptions{MaxAttempts: 3, InitialDelay: 400 * time.Millisecond, Linear: true})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}, *delays)
}

func TestWithRetry_SucceedsAfterFailure(t *testing.T) {
	recordSleeps(t)
	calls := 0

	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, service.RetryOptions{MaxAttempts: 3})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	delays := recordSleeps(t)
	calls := 0
	permanent := &RetryableError{Err: errors.New("401 unauthorized"), Retryable: false}

	err := WithRetry(context.Background(), func() error {
		calls++
		return permanent
	}, service.RetryOptions{MaxAttempts: 5})

	assert.Equal(t, permanent, err)
	assert.NotErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestWithRetry_RateLimitWaitsMaxDelay(t *testing.T) {
	delays := recordSleeps(t)

	err := WithRetry(context.Background(), func() error {
		return ErrRateLimit
	}, service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 3 * time.Second})

	assert.ErrorIs(t, err, ErrRateLimit)
	assert.Equal(t, []time.Duration{3 * time.Second}, *delays)
}

func TestWithRetry_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- WithRetry(ctx, func() error {
			calls++
			return errors.New("transient")
		}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("WithRetry did not return after cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "rate limit", err: ErrRateLimit, want: true},
		{name: "marked permanent", err: &RetryableError{Err: errors.New("x"), Retryable: false}, want: false},
		{name: "plain error", err: errors.New("x"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
