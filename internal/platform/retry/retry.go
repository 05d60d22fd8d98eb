// Package retry runs an operation with classified backoff: callers decide
// per error whether to stop, retry, or wait out an overloaded upstream.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Action int

const (
	Stop    Action = iota // permanent error, abort immediately
	Retry                 // transient error, use normal backoff
	Backoff               // overloaded upstream, use longer backoff
)

type Policy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	OverloadBackoff time.Duration
	OnRetry         func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

// Do runs op until it succeeds, the classifier says Stop, attempts run out,
// or ctx is cancelled during a backoff wait. Backoff doubles per attempt;
// a Backoff classification resets it to the overload duration.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			return zero, &PermanentError{Err: err}
		}
		if attempt == attempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}
		if action == Backoff {
			backoff = p.OverloadBackoff
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// PermanentError marks an error the classifier declared unretryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
