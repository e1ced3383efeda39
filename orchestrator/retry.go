package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries bounds rate-limit waits and JSON repair retries together.
	DefaultMaxRetries = 5
	// DefaultServiceUnavailableDelay is the fixed wait after a 503.
	DefaultServiceUnavailableDelay = 60 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// waitForRetry waits for the specified delay, respecting context cancellation.
func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryState is owned by one LLMRequest invocation.
type retryState struct {
	budget      int
	attempts    int // Budget consumed by rate limits and unparsable output
	sends       int
	unavailable backoff.BackOff
}

func newRetryState(ctx context.Context, budget int, unavailableDelay time.Duration) *retryState {
	return &retryState{
		budget:      budget,
		unavailable: backoff.WithContext(backoff.NewConstantBackOff(unavailableDelay), ctx),
	}
}

// consume spends one unit of the budget and reports whether another attempt
// is allowed.
func (r *retryState) consume() bool {
	r.attempts++
	return r.attempts < r.budget
}

// nextUnavailableDelay returns the wait after a 503. It is backoff.Stop once
// the context is done.
func (r *retryState) nextUnavailableDelay() time.Duration {
	return r.unavailable.NextBackOff()
}
