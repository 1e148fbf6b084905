// Package retry provides retry policies for node execution.
//
// A Policy decides, after a failed attempt, whether to try again and how long
// to wait first. Two shapes are built in:
//   - Fixed: constant delay, bounded attempts
//   - Exponential: base delay grown by a multiplier up to a cap, bounded attempts
//
// Do runs a function under a policy and is what the graph executor uses to
// wrap each node call.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy decides whether a failed attempt should be retried.
// Implementations must be safe for concurrent use.
type Policy interface {
	// Next is called after attempt (1-based) failed with err.
	// It returns the delay before the next attempt and whether to retry at all.
	Next(attempt int, err error) (time.Duration, bool)
}

// Config is the standard Policy implementation.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to the delay after each retry.
	// Values below 1 are treated as 1 (constant delay).
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides the default retryability check.
	RetryableFunc func(error) bool
}

// Compile-time interface check.
var _ Policy = Config{}

// None disables retries.
var None = Config{
	MaxAttempts: 1,
}

// Default is a general-purpose exponential policy.
var Default = Config{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// Aggressive retries more times with shorter backoff.
var Aggressive = Config{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  1.5,
	Jitter:         0.2,
}

// Fixed returns a policy that waits delay between attempts.
func Fixed(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: delay,
		MaxBackoff:     delay,
		BackoffFactor:  1,
	}
}

// Exponential returns a policy whose delay starts at base and is multiplied
// by multiplier after every retry, never exceeding max.
func Exponential(maxAttempts int, base, max time.Duration, multiplier float64) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: base,
		MaxBackoff:     max,
		BackoffFactor:  multiplier,
	}
}

// Next implements Policy.
func (c Config) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= c.attempts() {
		return 0, false
	}

	retryable := c.RetryableFunc
	if retryable == nil {
		retryable = IsRetryable
	}
	if !IsRetryable(err) || !retryable(err) {
		return 0, false
	}

	return c.Backoff(attempt), true
}

// Backoff returns the delay to wait after the given failed attempt.
func (c Config) Backoff(attempt int) time.Duration {
	if c.InitialBackoff <= 0 {
		return 0
	}

	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	d := float64(c.InitialBackoff) * math.Pow(factor, float64(attempt-1))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}

	// MaxBackoff caps the jittered delay too.
	delay := applyJitter(time.Duration(d), c.Jitter)
	if c.MaxBackoff > 0 && delay > c.MaxBackoff {
		delay = c.MaxBackoff
	}
	return max(delay, 0)
}

func (c Config) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// applyJitter returns the backoff duration with jitter applied.
func applyJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}

	// base +/- (base * jitter * random)
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// Option configures a Config.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(cfg *Config) {
		cfg.MaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.MaxBackoff = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) Option {
	return func(cfg *Config) {
		cfg.BackoffFactor = f
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) Option {
	return func(cfg *Config) {
		cfg.Jitter = j
	}
}

// WithRetryableFunc sets a custom retryability check.
func WithRetryableFunc(fn func(error) bool) Option {
	return func(cfg *Config) {
		cfg.RetryableFunc = fn
	}
}

// NewConfig creates a retry configuration from Default and the given options.
func NewConfig(opts ...Option) Config {
	cfg := Default
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Result contains the outcome of Do.
type Result[T any] struct {
	// Value is the result of the successful attempt.
	Value T

	// Err is the error of the last attempt if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent, including backoff.
	Duration time.Duration
}

// Do calls fn until it succeeds or the policy gives up.
// fn receives the 1-based attempt number. A nil policy means a single attempt.
// Cancellation of ctx during a backoff wait ends the loop with an error that
// wraps both ctx.Err() and the last attempt's error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	if p == nil {
		p = None
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		value, err := fn(ctx, attempt)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt, Duration: time.Since(start)}
		}

		delay, again := p.Next(attempt, err)
		if !again {
			return Result[T]{Value: value, Err: err, Attempts: attempt, Duration: time.Since(start)}
		}

		if waitErr := sleep(ctx, delay); waitErr != nil {
			return Result[T]{
				Value:    value,
				Err:      fmt.Errorf("retry interrupted after attempt %d: %w", attempt, errors.Join(waitErr, err)),
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
