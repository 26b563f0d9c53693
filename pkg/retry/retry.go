// Package retry runs operations with exponential backoff. It is used for
// upstream model calls and for the initial connections to the graph stores.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction applied to each delay
	MaxSameErrorType int     // After N consecutive same-type errors, give up (0 disables)
}

// DefaultConfig returns the defaults for store connections:
// 3 retries starting at 100ms, capped at 5s, doubling, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func (b *backoff) next() time.Duration {
	d := b.delay
	if b.cfg.JitterFactor > 0 {
		d = time.Duration(float64(d) + float64(d)*b.cfg.JitterFactor*(rand.Float64()*2-1))
	}
	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 && b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return d
}

// wait sleeps for the next delay or returns ctx.Err() when ctx ends first.
func (b *backoff) wait(ctx context.Context) error {
	t := time.NewTimer(b.next())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn until it succeeds or MaxRetries is exhausted, returning
// the last error. Cancellation of ctx is honored between attempts.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value, such as pool
// constructors. The last result is returned even on error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return result, werr
			}
		}
	}
	return result, err
}

// RetryableError is implemented by errors that declare their own
// retryability, such as classified provider errors.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	// Connection errors
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	// Database contention
	"too many connections",
	"deadlock",
	"could not serialize access",
	"serviceunavailable",
	// HTTP status codes and messages
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// IsRetryable reports whether err is transient. An error in the chain that
// implements RetryableError decides for itself; otherwise the message is
// matched against known transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated identical failures can be
// detected, e.g. "503", "timeout", "connection".
func classifyErrorType(err error) string {
	msg := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(msg, code) {
			return code
		}
	}

	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "deadlock"), strings.Contains(msg, "could not serialize access"):
		return "contention"
	}
	return "unknown"
}

// DoIfRetryable retries only transient errors; a permanent error is returned
// immediately. After MaxSameErrorType consecutive failures of the same type
// the error is treated as permanent.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	b := &backoff{cfg: cfg, delay: cfg.InitialDelay}

	var (
		lastErr     error
		lastType    string
		sameTypeRun int
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if t := classifyErrorType(err); t == lastType {
			sameTypeRun++
			if cfg.MaxSameErrorType > 0 && sameTypeRun >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameTypeRun, t, err)
			}
		} else {
			lastType = t
			sameTypeRun = 1
		}

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx); werr != nil {
				return werr
			}
		}
	}
	return lastErr
}
