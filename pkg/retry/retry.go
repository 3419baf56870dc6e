// Package retry provides fixed-interval retry loops for operations that
// must eventually succeed.
package retry

import (
	"context"
	"time"
)

// Policy defines how to retry an operation. A MaxAttempts of 0 means
// retry without bound; the only ways out are success or context
// cancellation.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Forever retries every second until the operation succeeds.
var Forever = Policy{Interval: time.Second}

// Do executes fn until it succeeds, the context is cancelled, or the
// attempt budget is exhausted. Every failure waits out the fixed interval
// before the next attempt; the interval is part of the policy so tests can
// inject zero.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var err error

	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts-1 {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Interval):
		}
	}
}
