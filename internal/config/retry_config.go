package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retries the scoring workflow performs around a generation step.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// GetRetryConfig returns the retry configuration
func (c Config) GetRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{MaxRetries: c.RetryMaxRetries, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	}
	return RetryConfig{
		MaxRetries:   c.RetryMaxRetries,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
		Multiplier:   c.RetryMultiplier,
		Jitter:       c.RetryJitter,
	}
}

// NewBackOff builds a bounded exponential backoff from the retry settings.
// A zero MaxRetries yields a single attempt.
func (r RetryConfig) NewBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.InitialDelay
	expo.MaxInterval = r.MaxDelay
	if r.Multiplier > 0 {
		expo.Multiplier = r.Multiplier
	}
	if !r.Jitter {
		expo.RandomizationFactor = 0
	}
	expo.MaxElapsedTime = 0
	expo.Reset()
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(expo, uint64(retries))
}
