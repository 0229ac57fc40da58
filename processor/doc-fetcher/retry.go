package docfetcher

import (
	"math/rand"
	"time"
)

// RetryConfig holds retry configuration for registry fetches.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per document.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for registry fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents thundering herd when multiple workers retry simultaneously.
func (r RetryConfig) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= r.BackoffMultiplier
	}

	backoff := time.Duration(float64(r.BackoffBase) * multiplier)
	if backoff > r.MaxBackoff {
		backoff = r.MaxBackoff
	}

	// Add jitter: +/- 25% to prevent synchronized retries
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
