package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries uint64) Policy {
	return Policy{InitialDelay: time.Millisecond, Factor: 2.0, Jitter: false, MaxRetries: maxRetries}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 100*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 2.0, p.Factor)
	assert.True(t, p.Jitter)
	assert.Equal(t, uint64(3), p.MaxRetries)
}

func TestDo(t *testing.T) {
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name         string
		failures     int
		permanent    bool
		maxRetries   uint64
		wantAttempts int
		wantErr      error
	}{
		{name: "succeeds first try", failures: 0, maxRetries: 3, wantAttempts: 1},
		{name: "succeeds after retries", failures: 2, maxRetries: 3, wantAttempts: 3},
		{name: "exhausts retries", failures: 10, maxRetries: 3, wantAttempts: 4, wantErr: errTransient},
		{name: "no retry policy", failures: 10, maxRetries: 0, wantAttempts: 1, wantErr: errTransient},
		{name: "permanent stops immediately", failures: 10, permanent: true, maxRetries: 3, wantAttempts: 1, wantErr: errFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastPolicy(tt.maxRetries), func() error {
				attempts++
				if attempts <= tt.failures {
					if tt.permanent {
						return Permanent(errFatal)
					}
					return errTransient
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, IsPermanent(err), "returned error should be unwrapped")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_OnRetry(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy(2).WithOnRetry(func(err error, wait time.Duration) {
		waits = append(waits, wait)
	})

	_ = Do(context.Background(), p, func() error { return errors.New("boom") })

	assert.Len(t, waits, 2)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, Policy{InitialDelay: time.Second, Factor: 2, MaxRetries: 5}, func() error {
		attempts++
		return errors.New("unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoValue(t *testing.T) {
	attempts := 0
	v, err := DoValue(context.Background(), fastPolicy(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, attempts)
}
