package llm

import (
	"context"
	"math/rand"
	"time"

	"github.com/pagemark/pagemark/internal/domain"
	"github.com/pagemark/pagemark/internal/observability"
)

// RetryPolicy re-attempts transcription calls that fail with a retryable
// class. Backoff grows exponentially from BaseDelay, is capped at
// MaxDelay, and carries random jitter so concurrent batches do not
// hammer the upstream in lockstep. Waits are suspension points only for
// the calling goroutine; other in-flight calls are unaffected.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	logger *observability.Logger
}

// NewRetryPolicy creates a retry policy with the given limits.
func NewRetryPolicy(maxAttempts int, base, max time.Duration, logger *observability.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    max,
		logger:      logger,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. The last error is returned on abort.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (*domain.TranscriptionResult, error)) (*domain.TranscriptionResult, error) {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !domain.Retryable(err) {
			return nil, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.backoff(attempt)
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("Transcription attempt failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// backoff computes the wait before attempt n+1: base * 2^(n-1), capped,
// plus up to 25% jitter.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
