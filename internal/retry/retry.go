// Package retry holds the bounded-retry and timeout combinators used around every venue call.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned together with the fallback value when WithTimeout gives up.
var ErrTimeout = errors.New("operation timed out")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op up to attempts times, sleeping baseDelay*2^(n-1) after the n-th failure.
// The last error is returned once attempts are exhausted.
func Do[T any](ctx context.Context, attempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		t := time.NewTimer(Backoff(baseDelay, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, lastErr
		case <-t.C:
		}
	}
	return zero, lastErr
}

// Backoff is the delay after the given (1-based) failed attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt-1))
}

type result[T any] struct {
	v   T
	err error
}

// WithTimeout races op against d. When the timer wins the fallback is returned with ErrTimeout,
// op's context is cancelled and its late result is dropped. A non-positive d never starts op.
func WithTimeout[T any](ctx context.Context, d time.Duration, fallback T, op func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fallback, ErrTimeout
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := op(cctx)
		done <- result[T]{v: v, err: err}
	}()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case r := <-done:
		return r.v, r.err
	case <-t.C:
		return fallback, ErrTimeout
	case <-ctx.Done():
		return fallback, ctx.Err()
	}
}
