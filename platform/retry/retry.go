// Package retry provides bounded retry with backoff for calls to external systems.
// Only transient faults (see apperr.IsTransient) are retried; everything else,
// including authentication failures, is returned on the first attempt.
package retry

import (
	"context"
	"time"

	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/config"
)

// Policy is an attempt budget with a quadratic backoff schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used when no configuration is supplied.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

// FromConfig builds a Policy from configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.GetRetryMaxAttempts(),
		BaseDelay:   cfg.GetRetryBaseDelay(),
		MaxDelay:    cfg.GetRetryMaxDelay(),
	}
}

// Delay returns the wait after the given failed attempt (1-based): attempt² × BaseDelay, capped by MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := time.Duration(attempt*attempt) * p.BaseDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// FailureFunc observes every failed attempt.
type FailureFunc func(attempt int, err error)

// Do runs fn until it succeeds, fails with a non-transient error, or the attempt budget is spent.
// The last error is returned unchanged so callers can still inspect its kind.
func Do(ctx context.Context, p Policy, onFailure FailureFunc, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return apperr.Timeout("retry aborted", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if !apperr.IsTransient(err) {
			return err
		}

		if attempt < attempts {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}
