package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func fastRetrySettings() *RetrySettings {
	return &RetrySettings{
		MaxAttempts:       4,
		MinBackoff:        time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryTransient(t *testing.T) {
	ctx := context.Background()

	// transient failures are retried until success
	attempts := 0
	result, err := RetryTransient(ctx, fastRetrySettings(), func() (int, error) {
		attempts += 1
		if attempts < 3 {
			return 0, NewTransientError(errors.New("rate limited"))
		}
		return 42, nil
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	transientErr := NewTransientError(errors.New("network blip"))
	_, err := RetryTransient(ctx, fastRetrySettings(), func() (int, error) {
		attempts += 1
		return 0, transientErr
	})
	assert.Equal(t, transientErr, err)
	assert.Equal(t, 4, attempts)
}

func TestRetryDoesNotRetryRejections(t *testing.T) {
	ctx := context.Background()

	// retrying a rejected mutation could double-submit side effects
	attempts := 0
	rejectedErr := NewRejectedError("invalid_transition", "already accepted")
	_, err := RetryTransient(ctx, fastRetrySettings(), func() (int, error) {
		attempts += 1
		return 0, rejectedErr
	})
	assert.Equal(t, rejectedErr, err)
	assert.Equal(t, 1, attempts)

	// a declined signing is not retried either
	attempts = 0
	_, err = RetryTransient(ctx, fastRetrySettings(), func() (int, error) {
		attempts += 1
		return 0, ErrCanceled
	})
	assert.Equal(t, ErrCanceled, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryCanceledContext(t *testing.T) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := RetryTransient(cancelCtx, fastRetrySettings(), func() (int, error) {
		attempts += 1
		return 0, NewTransientError(errors.New("rate limited"))
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, attempts)
}

func TestErrorTaxonomy(t *testing.T) {
	assert.Equal(t, true, IsTransient(NewTransientError(errors.New("x"))))
	assert.Equal(t, false, IsTransient(NewRejectedError("", "x")))
	assert.Equal(t, false, IsTransient(ErrCanceled))

	assert.Equal(t, true, IsRejected(NewRejectedError("", "x")))
	assert.Equal(t, false, IsRejected(NewTransientError(errors.New("x"))))

	assert.Equal(t, true, IsCanceled(ErrCanceled))
	assert.Equal(t, true, IsCanceled(context.Canceled))
	assert.Equal(t, false, IsCanceled(NewRejectedError("", "x")))
}
