package scheduler

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures the delay before retrying a failed run.
type BackoffConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultBackoffConfig returns sensible defaults for retrying a failed sync.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay:  30 * time.Second,
		MaxDelay:      15 * time.Minute,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Delay returns the wait before retry number attempt (starting at 0).
func (cfg BackoffConfig) Delay(attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if cfg.Jitter {
		// Add up to 25% jitter
		jitter := delay * 0.25 * rand.Float64()
		delay += jitter
	}

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	return time.Duration(delay)
}
