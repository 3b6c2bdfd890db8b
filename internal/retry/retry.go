// Package retry models the worker's retry policy as an explicit object:
// a bounded number of attempts over an exponential backoff schedule.
// Sleeping is injectable so tests run against a fake clock.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blazewallet/schedvault/internal/apierror"
)

// Policy bounds retries for dependency calls (KMS unwrap, chain RPC).
// Crypto failures are never retried regardless of budget: retrying a failed
// decrypt with the same inputs cannot succeed.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewPolicy builds a policy with the given attempt budget and base delay.
func NewPolicy(maxAttempts int, baseDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    30 * time.Second,
		sleep:       sleepCtx,
	}
}

// WithSleeper replaces the sleep function. Test hook.
func (p *Policy) WithSleeper(sleep func(context.Context, time.Duration) error) *Policy {
	p.sleep = sleep
	return p
}

// Do runs op up to MaxAttempts times, backing off between attempts. It
// stops early on success, on a non-retryable error, or when the context is
// done. The last error is returned when the budget is exhausted.
func (p *Policy) Do(ctx context.Context, op func() error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.BaseDelay
	schedule.MaxInterval = p.MaxDelay
	schedule.Reset()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !apierror.IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		if sleepErr := p.sleep(ctx, schedule.NextBackOff()); sleepErr != nil {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
