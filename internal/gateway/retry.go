package gateway

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// RetryPolicy retries transient model and store failures with exponential
// backoff.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy makes 3 attempts, waiting 1s then 2s, never more than 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Message fragments used when an error cannot classify itself. A transient
// fragment wins over a permanent one.
var (
	transientHints = []string{"connection refused", "connection reset", "timeout", "temporary failure", "rate limit", "too many requests"}
	permanentHints = []string{"invalid", "unauthorized", "forbidden", "context length", "maximum context"}
)

// ShouldRetry reports whether err may succeed on attempt+1.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return attempt <= p.MaxAttempts && Transient(err)
}

// Transient classifies err. Cancellation is final; errors with a Temporary
// method decide for themselves; unknown errors are retried.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, transientHints) {
		return true
	}
	return !containsAny(msg, permanentHints)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NextDelay is the wait after the given 1-indexed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, fails permanently, or MaxAttempts is
// reached. It returns the number of calls made and the last error. A done
// ctx interrupts the backoff wait and is returned as the error.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempt := 0
	for {
		attempt++
		err := fn(ctx)
		if err == nil || attempt >= p.MaxAttempts || !p.ShouldRetry(err, attempt) {
			return attempt, err
		}
		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
