package collab

import (
	"context"
	mathrand "math/rand"
	"time"

	"github.com/golang/glog"
)

func DefaultRetrySettings() *RetrySettings {
	return &RetrySettings{
		MaxAttempts:       4,
		MinBackoff:        250 * time.Millisecond,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

type RetrySettings struct {
	MaxAttempts       int
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float32
}

// RetryTransient runs `op`, retrying transient failures with exponential
// backoff up to the attempt limit. Non-transient failures (rejections,
// decode errors, cancellation) pass through immediately without retrying.
// Retrying a rejected mutation could double-submit side effects.
func RetryTransient[R any](ctx context.Context, settings *RetrySettings, op func() (R, error)) (R, error) {
	var empty R

	backoff := settings.MinBackoff
	var lastErr error
	for attempt := 0; attempt < settings.MaxAttempts; attempt += 1 {
		if 0 < attempt {
			// jitter in [backoff/2, backoff)
			pause := backoff/2 + time.Duration(mathrand.Int63n(int64(backoff/2)))
			glog.V(2).Infof("[retry]attempt %d after %s\n", attempt, pause)
			select {
			case <-ctx.Done():
				return empty, ctx.Err()
			case <-time.After(pause):
			}
			backoff = time.Duration(float32(backoff) * settings.BackoffMultiplier)
			if settings.MaxBackoff < backoff {
				backoff = settings.MaxBackoff
			}
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) {
			return empty, err
		}
		lastErr = err
	}

	glog.Infof("[retry]exhausted after %d attempts = %s\n", settings.MaxAttempts, lastErr)
	return empty, lastErr
}
