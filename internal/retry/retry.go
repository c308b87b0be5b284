// Package retry provides a bounded-retry wrapper with exponential backoff,
// applied at the call boundary to the calendar provider and intent
// classifier collaborators.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds how a call is retried
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the engine's default of three attempts
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Do invokes fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. The delay doubles after each failure up to
// MaxDelay. The last error is returned when all attempts fail.
func Do(ctx context.Context, logger *zap.Logger, policy Policy, name string, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}

	var lastErr error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		logger.Warn("Call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}
