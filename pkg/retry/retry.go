// Package retry wraps arbitrary operations with exponential backoff.
//
// The policy itself never logs: Execute returns structured attempt
// metadata so the caller decides what is worth reporting. Only errors
// the caller classifies as transient are retried; wrap ad-hoc errors
// with Transient, or have typed errors implement `Transient() bool`
// (see the source package's FetchError).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	// ErrRetriesExhausted is returned when all attempts fail. It wraps
	// the last underlying error, so errors.Is sees both.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrContextCancelled is returned when the context is cancelled
	// during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// JitterFunc perturbs a computed backoff delay. Nil means deterministic
// backoff.
type JitterFunc func(time.Duration) time.Duration

// Policy holds exponential-backoff configuration.
type Policy struct {
	// MaxRetries is the total number of attempts (including the first).
	MaxRetries int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts. Values below 1
	// are treated as the default 2.0.
	Multiplier float64

	// Jitter, when set, perturbs each delay. High fan-out deployments
	// should set this to avoid synchronized retry storms against the
	// same upstream host.
	Jitter JitterFunc
}

// DefaultPolicy returns a safe default: 3 attempts, 1s initial delay,
// doubling, capped at 30s, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Attempt records one invocation of the wrapped operation.
type Attempt struct {
	// Number is the 1-based attempt index.
	Number int

	// Delay is the backoff slept before the next attempt.
	// Zero for the final attempt.
	Delay time.Duration

	// Err is the failure for this attempt, nil on success.
	Err error
}

// Result carries attempt metadata for the caller to log or export.
type Result struct {
	Attempts []Attempt
	Elapsed  time.Duration
}

// LastErr returns the error of the final attempt, or nil.
func (r Result) LastErr() error {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1].Err
}

// Execute invokes op, retrying transient failures with exponential
// backoff. On success the error is nil and Result holds every attempt
// made. Non-transient failures return immediately with the underlying
// error; exhausting all attempts returns ErrRetriesExhausted wrapping
// the last error. Backoff waits honor ctx cancellation.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) (Result, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	start := time.Now()
	result := Result{Attempts: make([]Attempt, 0, maxRetries)}
	delay := p.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			result.Attempts = append(result.Attempts, Attempt{Number: attempt})
			result.Elapsed = time.Since(start)
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			result.Attempts = append(result.Attempts, Attempt{Number: attempt, Err: err})
			result.Elapsed = time.Since(start)
			return result, err
		}

		if attempt >= maxRetries {
			result.Attempts = append(result.Attempts, Attempt{Number: attempt, Err: err})
			break
		}

		wait := delay
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.Jitter != nil {
			wait = p.Jitter(wait)
		}
		result.Attempts = append(result.Attempts, Attempt{Number: attempt, Delay: wait, Err: err})

		select {
		case <-ctx.Done():
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * multiplier)
	}

	result.Elapsed = time.Since(start)
	return result, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxRetries, lastErr)
}

// ProportionalJitter perturbs a delay by ±fraction (e.g. 0.2 yields a
// delay in [0.8d, 1.2d]).
func ProportionalJitter(fraction float64) JitterFunc {
	return func(d time.Duration) time.Duration {
		low := 1 - fraction
		return time.Duration(float64(d) * (low + rand.Float64()*2*fraction))
	}
}

// transientError marks an error as retriable.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func (e *transientError) Transient() bool {
	return true
}

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) classifies
// itself as retriable via a `Transient() bool` method.
func IsTransient(err error) bool {
	for err != nil {
		if t, ok := err.(interface{ Transient() bool }); ok {
			return t.Transient()
		}
		err = errors.Unwrap(err)
	}
	return false
}
