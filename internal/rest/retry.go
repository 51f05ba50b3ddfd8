package rest

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy bounds retries for idempotent reads. Writes are never
// retried: without an idempotency key a resubmitted POST/PATCH is not
// safe, and the backend offers none.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the original client's manual resubmission
// habits: three attempts, exponential backoff from one second.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    8 * time.Second,
}

// delay computes the backoff before the given retry (1-based), with
// up to 25% jitter so simultaneous clients do not reconverge.
func (p Policy) delay(retry int) time.Duration {
	d := p.BaseDelay << uint(retry-1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// do runs fn up to MaxAttempts times. Only network failures and 5xx
// responses are retried; 4xx responses are the caller's mistake and
// returned immediately.
func (p Policy) do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &NetworkError{Op: "retry wait", Err: ctx.Err()}
			case <-time.After(p.delay(attempt - 1)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *NetworkError:
		// Cancellation is a deliberate stop, not a transient fault.
		return !errors.Is(e.Err, context.Canceled)
	case *RequestError:
		return e.Status >= 500
	}
	return false
}
