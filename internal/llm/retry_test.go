package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

func testPolicy(maxAttempts int) *RetryPolicy {
	return NewRetryPolicy(maxAttempts, time.Millisecond, 4*time.Millisecond, observability.Nop())
}

// flaky fails with err the first failures times, then succeeds.
func flaky(failures int, err error) (fn func(ctx context.Context) (*domain.TranscriptionResult, error), attempts *int) {
	attempts = new(int)
	fn = func(ctx context.Context) (*domain.TranscriptionResult, error) {
		*attempts++
		if *attempts <= failures {
			return nil, err
		}
		return &domain.TranscriptionResult{Markdown: "ok"}, nil
	}
	return fn, attempts
}

func TestRetry_TransientFailuresThenSuccess(t *testing.T) {
	const failures = 2
	fn, attempts := flaky(failures, domain.TransientError("rate limited", nil))

	res, err := testPolicy(5).Do(context.Background(), fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Markdown)
	assert.Equal(t, failures+1, *attempts)
}

func TestRetry_TimeoutIsRetryable(t *testing.T) {
	fn, attempts := flaky(1, domain.TimeoutError("deadline", nil))

	_, err := testPolicy(3).Do(context.Background(), fn)
	require.NoError(t, err)
	assert.Equal(t, 2, *attempts)
}

func TestRetry_AbortsAfterMaxAttempts(t *testing.T) {
	const maxAttempts = 3
	fn, attempts := flaky(10, domain.TransientError("still overloaded", nil))

	_, err := testPolicy(maxAttempts).Do(context.Background(), fn)
	require.Error(t, err)
	assert.Equal(t, maxAttempts, *attempts, "exactly max attempts, no more")
	assert.Equal(t, domain.ClassTransient, domain.ClassOf(err), "last error is surfaced")
}

func TestRetry_FatalAbortsImmediately(t *testing.T) {
	fn, attempts := flaky(10, domain.FatalError("bad request", nil))

	_, err := testPolicy(5).Do(context.Background(), fn)
	require.Error(t, err)
	assert.Equal(t, 1, *attempts)
	assert.Equal(t, domain.ClassFatal, domain.ClassOf(err))
}

func TestRetry_ContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	fn := func(ctx context.Context) (*domain.TranscriptionResult, error) {
		calls++
		cancel()
		return nil, domain.TransientError("overloaded", nil)
	}

	p := NewRetryPolicy(5, time.Hour, time.Hour, observability.Nop())
	_, err := p.Do(ctx, fn)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestRetry_BackoffGrowsAndIsCapped(t *testing.T) {
	p := NewRetryPolicy(10, 10*time.Millisecond, 50*time.Millisecond, observability.Nop())

	first := p.backoff(1)
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)

	// 10ms * 2^4 overshoots the 50ms cap; jitter adds at most 25%.
	late := p.backoff(5)
	assert.GreaterOrEqual(t, late, 50*time.Millisecond)
	assert.LessOrEqual(t, late, 50*time.Millisecond+50*time.Millisecond/4)
}
