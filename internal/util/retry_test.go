package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// retry adapts an error-only call to RetryWithValue
func retry(ctx context.Context, cfg *RetryConfig, fn func() error) *RetryResult {
	_, result := RetryWithValue(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return result
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	result := retry(context.Background(), nil, func() error {
		attempts++
		return nil
	})

	if result.Attempts != 1 || attempts != 1 {
		t.Errorf("expected 1 attempt, got %d (calls %d)", result.Attempts, attempts)
	}
	if result.LastError != nil {
		t.Errorf("expected no error, got %v", result.LastError)
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := retry(context.Background(), fastConfig(5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.LastError != nil {
		t.Errorf("expected no error, got %v", result.LastError)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	result := retry(context.Background(), fastConfig(2), func() error {
		return errors.New("always fails")
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", result.LastError)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("user rejected")
	attempts := 0
	result := retry(context.Background(), fastConfig(5), func() error {
		attempts++
		return MarkNonRetryable(permanent)
	})

	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
	if !errors.Is(result.LastError, permanent) {
		t.Errorf("expected wrapped permanent error, got %v", result.LastError)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(-1)
	cfg.BaseDelay = time.Second

	attempts := 0
	result := retry(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("fail")
	})

	if !errors.Is(result.LastError, ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", result.LastError)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryWithValue(t *testing.T) {
	attempts := 0
	val, result := RetryWithValue(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("first fails")
		}
		return 42, nil
	})

	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	if d := backoff(cfg, 1); d != time.Second {
		t.Errorf("attempt 1 delay = %v, want 1s", d)
	}
	if d := backoff(cfg, 4); d != 3*time.Second {
		t.Errorf("attempt 4 delay = %v, want clamp to 3s", d)
	}

	cfg = &RetryConfig{BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 20; i++ {
		if d := backoff(cfg, 2); d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 300ms]", d)
		}
	}
}

func TestIsTransientRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), true},
		{errors.New("429 Too Many Requests"), true},
		{fmt.Errorf("balanceOf: %w", context.DeadlineExceeded), true},
		{context.Canceled, false},
		{errors.New("execution reverted: stake not found"), false},
		{errors.New("abi: cannot unmarshal"), false},
		{MarkNonRetryable(errors.New("connection refused")), false},
		{errors.New("invalid address"), false},
	}
	for _, tt := range tests {
		if got := IsTransientRPCError(tt.err); got != tt.want {
			t.Errorf("IsTransientRPCError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
