// Package retry provides bounded exponential backoff for telemetry export.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the default initial backoff duration.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the default maximum backoff duration. Export
	// retries run on the batch processor's goroutine, so the cap stays
	// short enough that exhausted batches drop promptly.
	DefaultMaxBackoff = 5 * time.Second

	// DefaultJitterFactor is the default jitter factor (25%).
	DefaultJitterFactor = 0.25

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first
	// try. Default is 3.
	MaxRetries int

	// InitialBackoff is the initial backoff duration. Default is 100ms.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration. Default is 5s.
	MaxBackoff time.Duration

	// JitterFactor adds randomness (0.0 to 1.0) to backoff. Default is 0.25.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// normalized returns a copy of the config with zero or out-of-range values
// replaced by defaults. Safe to call on a nil receiver.
func (c *Config) normalized() Config {
	out := Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
	if c == nil {
		return out
	}
	if c.MaxRetries > 0 {
		out.MaxRetries = c.MaxRetries
	}
	if c.InitialBackoff > 0 {
		out.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		out.MaxBackoff = c.MaxBackoff
	}
	if c.JitterFactor > 0 {
		out.JitterFactor = math.Min(c.JitterFactor, MaxJitterFactor)
	}
	return out
}

// Func is a function that can be retried.
type Func func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes fn, retrying failures with jittered exponential backoff until
// it succeeds, the attempt budget is spent, or ctx is done. The last error
// is returned when the budget is exhausted.
func Do(ctx context.Context, cfg *Config, fn Func, opts *Options) error {
	c := cfg.normalized()

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		// No sleep after the final attempt.
		if attempt < c.MaxRetries {
			backoff := CalculateBackoff(attempt, c.InitialBackoff, c.MaxBackoff, c.JitterFactor)

			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt+1, lastErr, backoff)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))

	// Jitter prevents synchronized retry bursts against a recovering collector.
	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	jitter := backoff * jitterFactor * rand.Float64()
	backoff += jitter

	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
