package bybit

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig shapes the exponential backoff applied to retryable failures.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig retries up to four attempts with 1s/2s/4s pauses.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// withRetry runs fn until it succeeds, the error is not retryable, or the
// attempt budget is spent. The last error is returned as-is.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	cfg := c.retry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt+1 >= cfg.MaxAttempts || !IsRetryable(lastErr) {
			break
		}

		delay := backoffDelay(attempt, cfg)
		c.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying bybit request")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay grows the pause exponentially with the attempt number, capped
// at MaxDelay, with up to ±10% jitter when enabled.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	}
	return delay
}
