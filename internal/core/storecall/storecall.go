// Package storecall bounds every store round-trip with a timeout and retries
// idempotent reads on transient failures. Writes are attempted exactly once.
package storecall

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tallybook/internal/core/apperror"
)

// Policy configures store call behaviour.
type Policy struct {
	// Timeout bounds a single attempt. Zero disables the bound.
	Timeout time.Duration
	// ReadRetries is the number of extra attempts for reads failing with STORE_UNAVAILABLE.
	ReadRetries uint
	// InitialBackoff and MaxBackoff shape the jittered exponential delay between read attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy returns production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        2 * time.Second,
		ReadRetries:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Read runs fn, retrying transient failures with backoff.
func Read[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := attempt(ctx, p.Timeout, fn)
		if err != nil && !apperror.HasCode(err, apperror.CodeStoreUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.ReadRetries+1))
}

// Write runs fn once under the policy timeout.
func Write(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := attempt(ctx, p.Timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WriteValue is Write for calls returning a value.
func WriteValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	return attempt(ctx, p.Timeout, fn)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	if !apperror.IsAppError(err) && errors.Is(err, context.DeadlineExceeded) {
		return v, apperror.NewStoreUnavailable(err)
	}
	return v, err
}
