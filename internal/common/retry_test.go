package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		failUntil int
		failWith  error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{
			name:      "succeeds first time",
			failUntil: 0,
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "succeeds after transient failures",
			failUntil: 2,
			failWith:  errBoom,
			attempts:  3,
			wantCalls: 3,
		},
		{
			name:      "exhausts attempts",
			failUntil: 10,
			failWith:  errBoom,
			attempts:  3,
			wantCalls: 3,
			wantErr:   ErrMaxRetries,
		},
		{
			name:      "non-retryable error stops immediately",
			failUntil: 10,
			failWith:  &RetryableError{Err: errBoom, Retryable: false},
			attempts:  5,
			wantCalls: 1,
			wantErr:   errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				calls++
				if calls <= tt.failUntil {
					return tt.failWith
				}
				return nil
			}, fastRetry(tt.attempts))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return errors.New("always")
	}, RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("503"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("400"), Retryable: false}))
	assert.False(t, IsRetryable(ErrNotFound))
}
