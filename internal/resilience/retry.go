package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy controls retry attempts and backoff growth.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay seeds the backoff: the sleep before retry n is uniform
	// over (0, BaseDelay·2^n].
	BaseDelay time.Duration
}

// DefaultPolicy retries twice with a 500ms backoff base.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
}

// Retryable decides whether an error is worth another attempt. Predicates
// must be pure.
type Retryable func(error) bool

// Do runs fn up to MaxRetries+1 times, sleeping a full-jitter backoff
// between attempts the predicate admits. Cancelling ctx aborts the
// backoff sleep and surfaces the cancellation wrapped around the last
// attempt's error; fn is responsible for honoring ctx itself.
func Do(ctx context.Context, p Policy, retryable Retryable, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || retryable == nil || !retryable(err) {
			return err
		}
		timer := time.NewTimer(fullJitter(p.BaseDelay, attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("attempt %d interrupted: %w (last error: %v)", attempt+1, ctx.Err(), err)
		}
	}
}

// fullJitter draws uniformly from (0, base·2^attempt].
func fullJitter(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	ceiling := base << attempt
	if ceiling <= 0 {
		// Shifted past the int64 range; clamp to the un-jittered base.
		ceiling = base
	}
	return time.Duration(rand.Int64N(int64(ceiling))) + 1
}
