package shared

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds how often and how long a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds up to 25% random delay to computed backoffs.
	Jitter bool
}

// Backoff returns the wait before the retry that follows attempt (zero based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay/4) + 1))
	}
	return delay
}

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Retry runs fn until it succeeds, fails permanently or the policy runs out.
// Transient failures wait for the server suggested delay when one is
// attached, otherwise for an exponential backoff. Exhaustion is reported as
// ErrRetriesExhausted wrapping the last error.
func Retry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, what string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		delay, ok := RetryAfter(lastErr)
		if !ok {
			delay = policy.Backoff(attempt)
		}
		logger.Warn("transient failure, retrying",
			zap.String("operation", what),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", what, attempts, ErrRetriesExhausted, lastErr)
}
