package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for the shared exponential backoff policy.
const (
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultFactor       = 2.0
	DefaultMaxRetries   = 3
	jitterFactor        = 0.5
	maxInterval         = 10 * time.Second
)

// Policy describes a bounded exponential backoff.
// MaxRetries counts retries, so an operation runs at most MaxRetries+1 times.
type Policy struct {
	InitialDelay time.Duration
	Factor       float64
	Jitter       bool
	MaxRetries   uint64

	// OnRetry is called before each retry with the failure and the wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultPolicy returns 100ms initial delay, factor 2.0, jitter on, 3 retries.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: DefaultInitialDelay,
		Factor:       DefaultFactor,
		Jitter:       true,
		MaxRetries:   DefaultMaxRetries,
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() Policy {
	return Policy{InitialDelay: time.Millisecond, Factor: 1, MaxRetries: 0}
}

// WithOnRetry returns a copy of p that reports retries to fn.
func (p Policy) WithOnRetry(fn func(err error, wait time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitialDelay
	}
	b.Multiplier = p.Factor
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	if p.Jitter {
		b.RandomizationFactor = jitterFactor
	}
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops retrying and returns err unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. The last error from op is returned.
func Do(ctx context.Context, p Policy, op func() error) error {
	var lastErr error
	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			lastErr = perm.Err
			return backoff.Permanent(perm.Err)
		}
		lastErr = err
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = func(err error, wait time.Duration) {
			p.OnRetry(err, wait)
		}
	}

	if err := backoff.RetryNotify(operation, p.newBackOff(ctx), notify); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
