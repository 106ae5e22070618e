// Package storage holds the error vocabulary shared by every repository
// implementation and the domain stores built on top of them.
package storage

import (
	"errors"
	"fmt"

	"budgetsync/internal/shared/retry"
)

var (
	// ErrDuplicateKey is returned by a create when the key already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConditionFailed is returned by a conditional update or delete that
	// matched no row.
	ErrConditionFailed = errors.New("condition failed")
	// ErrStore matches any *StoreError.
	ErrStore = errors.New("store error")
)

// StoreError is a storage I/O failure that survived the retry policy.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// IsPermanent reports whether a repository error must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrConditionFailed)
}

// Retryable marks permanent repository errors so retry.Do gives up on them.
func Retryable(err error) error {
	if err != nil && IsPermanent(err) {
		return retry.Permanent(err)
	}
	return err
}

// Wrap turns a failure that is not part of the domain vocabulary into a
// *StoreError. Permanent errors and nil pass through untouched.
func Wrap(op string, err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
