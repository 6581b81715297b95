package util

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff
type RetryConfig struct {
	// MaxRetries counts attempts after the first. -1 retries until ctx ends.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Multiplier grows the delay per attempt; 0 means 2.
	Multiplier float64
	// Jitter spreads each delay by +/- this fraction.
	Jitter float64
	// RetryIf filters errors worth another attempt. nil retries everything.
	RetryIf func(error) bool
}

// DefaultRetryConfig is used for dialing
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// ReadRetryConfig is used for idempotent RPC reads. Writes are never retried.
func ReadRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
		RetryIf:    IsTransientRPCError,
	}
}

// RetryResult describes how a retried call ended
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
}

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// RetryWithValue calls fn until it succeeds, returns a permanent error, runs
// out of attempts or ctx ends. A nil config means DefaultRetryConfig.
func RetryWithValue[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, *RetryResult) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var zero T
	result := &RetryResult{}
	start := time.Now()
	end := func(v T, err error) (T, *RetryResult) {
		result.LastError = err
		result.Duration = time.Since(start)
		return v, result
	}

	for {
		result.Attempts++
		v, err := fn()
		switch {
		case err == nil:
			return end(v, nil)
		case IsNonRetryable(err), config.RetryIf != nil && !config.RetryIf(err):
			return end(zero, err)
		case config.MaxRetries >= 0 && result.Attempts > config.MaxRetries:
			return end(zero, errors.Join(ErrMaxRetriesExceeded, err))
		}

		timer := time.NewTimer(backoff(config, result.Attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return end(zero, errors.Join(ErrContextCanceled, ctx.Err(), err))
		case <-timer.C:
		}
	}
}

// backoff returns the wait after the given attempt: BaseDelay grown by
// Multiplier per attempt, jittered, capped at MaxDelay.
func backoff(config *RetryConfig, attempt int) time.Duration {
	mult := config.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(config.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if config.MaxDelay > 0 && d > float64(config.MaxDelay) {
			break
		}
	}
	if config.Jitter > 0 {
		d += d * config.Jitter * (2*rand.Float64() - 1)
	}
	if config.MaxDelay > 0 && d > float64(config.MaxDelay) {
		return config.MaxDelay
	}
	return time.Duration(d)
}

// NonRetryableError stops RetryWithValue at the first attempt
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// MarkNonRetryable wraps err so it is not retried
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with MarkNonRetryable
func IsNonRetryable(err error) bool {
	var nr *NonRetryableError
	return errors.As(err, &nr)
}

// transientMarkers are substrings of errors returned by RPC endpoints for
// conditions that usually clear on their own.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"eof",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"header not found",
	"temporarily unavailable",
}

// IsTransientRPCError reports whether a read error is worth retrying.
// Contract reverts and decoding failures are permanent.
func IsTransientRPCError(err error) bool {
	if err == nil || IsNonRetryable(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "abi:") {
		return false
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
