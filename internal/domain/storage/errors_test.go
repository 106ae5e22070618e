package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"budgetsync/internal/shared/retry"
)

func TestWrap(t *testing.T) {
	ioErr := errors.New("connection reset")

	wrapped := Wrap("sync_records.insert", ioErr)
	assert.ErrorIs(t, wrapped, ErrStore)
	assert.ErrorIs(t, wrapped, ioErr)
	assert.Contains(t, wrapped.Error(), "sync_records.insert")

	assert.NoError(t, Wrap("op", nil))

	dup := fmt.Errorf("insert: %w", ErrDuplicateKey)
	assert.Same(t, dup, Wrap("op", dup))

	// already wrapped errors are not double wrapped
	assert.Same(t, wrapped, Wrap("other", wrapped))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retry.IsPermanent(Retryable(ErrConditionFailed)))
	assert.True(t, retry.IsPermanent(Retryable(fmt.Errorf("x: %w", ErrDuplicateKey))))
	assert.False(t, retry.IsPermanent(Retryable(errors.New("timeout"))))
	assert.NoError(t, Retryable(nil))
}
