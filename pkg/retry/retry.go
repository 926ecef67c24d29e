// Package retry runs an operation with a bounded attempt count and a fixed
// wait between attempts. There is no backoff growth: integration pulls are
// scheduled jobs where predictable pacing matters more than congestion
// control.
package retry

import (
	"context"
	"time"
)

// Policy bounds the attempts of a retried operation.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// Wait is the fixed pause between consecutive attempts.
	Wait time.Duration

	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries every error.
	Retryable func(error) bool
}

// Do invokes fn until it succeeds, the policy's attempts are exhausted, an
// error is deemed non-retryable, or ctx is done. The last error is returned;
// a non-retryable error is returned immediately. Waits respect ctx
// cancellation.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if werr := wait(ctx, p.Wait); werr != nil {
			return werr
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
