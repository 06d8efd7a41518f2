package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried: how many attempts are
// allowed, how long to wait between them, and which errors are worth
// retrying at all.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// ExponentialBackoff returns a backoff function producing
// base, base*factor, base*factor^2, ... for attempt 1, 2, 3, ...
func ExponentialBackoff(base time.Duration, factor int) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= time.Duration(factor)
		}
		return d
	}
}

// Do runs fn until it succeeds, exhausts MaxAttempts, or hits a
// non-retryable error. The error of the last attempt is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
