// Package ratelimit tracks recent calls per rate-limited API and computes how
// long a caller must wait before the next call is permitted.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/rs/zerolog"
)

// Window is the trailing interval events are counted over.
const Window = time.Minute

// Status reports that a technology is currently limited.
type Status struct {
	IsRateLimited    bool   `json:"is_rate_limited"`
	WaitSeconds      int    `json:"wait_seconds"`
	RateLimitedAPIID string `json:"rate_limited_api_id"`
}

// EventLog is the append-only record of permitted calls.
type EventLog interface {
	AppendEvent(ctx context.Context, apiID string, at time.Time) error
	// WindowStats counts events strictly after since and returns the
	// oldest of them. oldest is zero when count is 0.
	WindowStats(ctx context.Context, apiID string, since time.Time) (count int, oldest time.Time, err error)
	// PruneEvents drops events older than before. Only maintenance jobs call it.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Limiter enforces per-minute ceilings. Limits are global per API, shared by
// every user of the technology.
type Limiter struct {
	mu     sync.Mutex // serializes Admit
	events EventLog
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter backed by events.
func NewLimiter(events EventLog, logger zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		events: events,
		now:    time.Now,
		logger: logger.With().Str("component", "rateLimiter").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsRateLimited returns nil when tech has no ceiling. Otherwise the returned
// status says whether the ceiling is reached and, if so, how many seconds
// remain until the oldest event leaves the window.
func (l *Limiter) IsRateLimited(ctx context.Context, tech *technology.Technology) (*Status, error) {
	if tech.RequestsPerMinute <= 0 {
		return nil, nil
	}

	apiID := tech.RateLimitKey()
	now := l.now()
	count, oldest, err := l.events.WindowStats(ctx, apiID, now.Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("rate limit window for %s: %w", apiID, err)
	}

	status := &Status{RateLimitedAPIID: apiID}
	if count < tech.RequestsPerMinute {
		return status, nil
	}

	wait := int(math.Ceil((Window - now.Sub(oldest)).Seconds()))
	if wait <= 0 {
		// The window already rolled over.
		return status, nil
	}

	status.IsRateLimited = true
	status.WaitSeconds = wait
	l.logger.Debug().
		Str("api_id", apiID).
		Int("count", count).
		Int("limit", tech.RequestsPerMinute).
		Int("wait_seconds", wait).
		Msg("Rate limit reached")
	return status, nil
}

// Record appends one event for a permitted call. Technologies without a
// ceiling are not recorded.
func (l *Limiter) Record(ctx context.Context, tech *technology.Technology) error {
	if tech.RequestsPerMinute <= 0 {
		return nil
	}
	if err := l.events.AppendEvent(ctx, tech.RateLimitKey(), l.now()); err != nil {
		return fmt.Errorf("record rate limit event: %w", err)
	}
	return nil
}

// Admit checks the ceiling and, when the call is permitted, records its event
// before returning. Concurrent Admit calls on one Limiter cannot both take
// the last slot of a window.
func (l *Limiter) Admit(ctx context.Context, tech *technology.Technology) (*Status, error) {
	if tech.RequestsPerMinute <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	status, err := l.IsRateLimited(ctx, tech)
	if err != nil || status.IsRateLimited {
		return status, err
	}
	if err := l.Record(ctx, tech); err != nil {
		return nil, err
	}
	return status, nil
}
