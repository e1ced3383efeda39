// Package janitor prunes rate-limit events that have aged out of every window.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aschepis/backscratcher/llmcore/ratelimit"
	"github.com/rs/zerolog"
)

// DefaultRetention keeps a day of events for inspection.
const DefaultRetention = 24 * time.Hour

// Janitor runs PruneEvents on a schedule.
type Janitor struct {
	events    ratelimit.EventLog
	schedule  Schedule
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// New creates a janitor for events. Retention shorter than the rate-limit
// window would drop events the limiter still counts, so it is rejected.
func New(events ratelimit.EventLog, schedule string, retention time.Duration, logger zerolog.Logger, opts ...Option) (*Janitor, error) {
	if events == nil {
		return nil, fmt.Errorf("events cannot be nil")
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	if retention == 0 {
		retention = DefaultRetention
	}
	if retention < ratelimit.Window {
		return nil, fmt.Errorf("retention %s is shorter than the rate limit window %s", retention, ratelimit.Window)
	}

	j := &Janitor{
		events:    events,
		schedule:  sched,
		retention: retention,
		now:       time.Now,
		logger:    logger.With().Str("component", "janitor").Logger(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start prunes once immediately and then on every scheduled tick until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info().Dur("retention", j.retention).Msg("Starting janitor")
	j.runLogged(ctx)

	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info().Msg("Janitor stopped: context cancelled")
			return
		case <-timer.C:
			j.runLogged(ctx)
		}
	}
}

// RunOnce prunes events older than the retention and reports how many were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	removed, err := j.events.PruneEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit events: %w", err)
	}
	return removed, nil
}

func (j *Janitor) runLogged(ctx context.Context) {
	removed, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("Janitor run failed")
		return
	}
	if removed > 0 {
		j.logger.Info().Int64("removed", removed).Msg("Pruned rate limit events")
	}
}
