package ignition

import (
	"context"
	"math"
	"time"
)

// retryPolicy bounds how often a single step's forward action is retried
// before the saga escalates to compensation. Only retryable (transient or
// throttled) failures are attempted again; a permanent or conflict failure
// rolls back immediately. The default policy performs no retries, matching
// the roll-back-on-first-failure behavior callers expect unless they opt in.
type retryPolicy struct {
	// maxRetries is the number of extra attempts after the first failure.
	maxRetries int

	// baseDelay is the starting backoff. Throttled failures use a longer
	// base regardless.
	baseDelay time.Duration

	// maxDelay caps the backoff growth.
	maxDelay time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxRetries: 0,
		baseDelay:  time.Second,
		maxDelay:   time.Minute,
	}
}

// execute runs fn, retrying retryable failures with exponential backoff
// until the attempt budget is spent or the context is cancelled.
func (p retryPolicy) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= p.maxRetries {
			return err
		}
		select {
		case <-time.After(p.backoff(attempt, err)):
		case <-ctx.Done():
			return NewPermanentError("step cancelled during retry backoff", ctx.Err())
		}
	}
}

// backoff computes the delay before the next attempt: exponential growth
// from the base delay, a longer base when the collaborator is throttling
// us, capped at maxDelay, with a fixed 12.5% jitter spread.
func (p retryPolicy) backoff(attempt int, err error) time.Duration {
	base := p.baseDelay
	if base <= 0 {
		base = time.Second
	}
	if IsThrottled(err) {
		base = 5 * base
	}

	delay := base * time.Duration(math.Pow(2, float64(attempt)))
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}

	jitter := time.Duration(float64(delay) * 0.25)
	return delay + jitter/2
}
