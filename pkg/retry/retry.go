// Package retry runs fallible operations under a bounded attempt policy.
//
// The policy only decides how often and how long to wait. What happens once
// attempts are exhausted is the caller's decision: critical call sites
// propagate the error, best-effort call sites log it and move on.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = time.Second
)

// BackoffFunc returns the wait before the attempt following the given one (1-based).
type BackoffFunc func(attempt int) time.Duration

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Policy bounds how many times an operation runs and how long to wait in between.
type Policy struct {
	Attempts int
	Backoff  BackoffFunc
	// OnRetry, when set, observes every failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Linear waits attempt*base between attempts.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// NewPolicy builds a linear-backoff policy, falling back to defaults for non-positive input.
func NewPolicy(attempts int, base time.Duration) Policy {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if base < 0 {
		base = DefaultBaseDelay
	}
	return Policy{Attempts: attempts, Backoff: Linear(base)}
}

// ExhaustedError is returned once every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the context ends,
// or the policy runs out of attempts.
func (p Policy) Do(ctx context.Context, fn Func) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoffFn := p.Backoff
	if backoffFn == nil {
		backoffFn = Linear(DefaultBaseDelay)
	}

	attempt := 0
	backoff := goretry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= attempts {
			return 0, true
		}
		return backoffFn(attempt), false
	})

	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return err
		}
		if p.OnRetry != nil && attempt < attempts {
			p.OnRetry(attempt, err)
		}
		return goretry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	var perm permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempt, Err: err}
}
