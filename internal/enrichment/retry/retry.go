// Package retry runs classifier calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
	// Jitter is the fractional spread applied to each delay (0.1 = ±10%).
	Jitter float64
}

// DefaultConfig provides the enrichment defaults.
var DefaultConfig = Config{
	MaxRetries:  3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
	CallTimeout: 5 * time.Second,
	Jitter:      0.1,
}

// ErrInvalidResponse marks a reply that could not be interpreted. It is never retried.
var ErrInvalidResponse = errors.New("invalid classifier response")

// StatusError carries an HTTP status code from a classifier backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classifier returned status %d", e.Code)
	}
	return fmt.Sprintf("classifier returned status %d: %s", e.Code, e.Message)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent marks err as not worth retrying.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ErrorClass determines how to handle an error.
type ErrorClass int

const (
	Transient ErrorClass = iota
	Permanent
)

func (c ErrorClass) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// Classify sorts an error into transient (retry) or permanent (stop).
// Timeouts, connection failures, 429 and 5xx are transient; other 4xx and
// malformed responses are permanent.
func Classify(err error) ErrorClass {
	if err == nil {
		return Transient
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return Permanent
	}
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429, se.Code == 408, se.Code >= 500:
			return Transient
		case se.Code >= 400:
			return Permanent
		}
		return Transient
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "unauthorized") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "invalid api key") || strings.Contains(s, "bad request") {
		return Permanent
	}

	// Default to transient (network, resets, etc)
	return Transient
}

// ErrorType returns a short label for metrics.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429:
			return "rate_limited"
		case se.Code >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "other"
}

// IsTimeout reports whether err is a per-call timeout.
func IsTimeout(err error) bool {
	return ErrorType(err) == "timeout"
}

// Hooks observe retry progress.
type Hooks struct {
	// OnRetry runs before sleeping ahead of the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns a permanent error, or MaxRetries
// retries have been spent. Each attempt gets its own CallTimeout deadline.
func Do[T any](ctx context.Context, cfg Config, hooks Hooks, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := call(ctx, cfg.CallTimeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		if Classify(err) == Permanent {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := Jittered(Backoff(attempt, cfg), cfg.Jitter)
		if hooks.OnRetry != nil {
			hooks.OnRetry(attempt+1, delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// Backoff returns min(base*2^attempt, max) without jitter.
func Backoff(attempt int, cfg Config) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Jittered spreads d by ±frac.
func Jittered(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * frac
	return time.Duration(float64(d) * (1 + spread))
}
