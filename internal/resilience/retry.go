package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig tunes [Retry].
type RetryConfig struct {
	// Attempts is the total number of calls, including the first. Default: 3.
	Attempts int

	// BaseDelay is the wait after the first failure; it doubles after each
	// further failure. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// OnRetry, when set, is called before each wait with the 1-based number of
	// the failed attempt.
	OnRetry func(attempt int, err error)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// Backoff returns the wait after the given 1-based failed attempt.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	d := c.BaseDelay << (attempt - 1)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned wrapped with the attempt count.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == cfg.Attempts {
			break
		}
		wait := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		slog.Debug("retrying after failure", "attempt", attempt, "wait", wait, "err", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("resilience: retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("resilience: gave up after %d attempts: %w", cfg.Attempts, err)
}
