package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger checks and records quota usage.
type Ledger struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger

	// mu serializes reservations within the process; the store transaction
	// covers concurrent processes.
	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger on top of store.
func NewLedger(store Store, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "quotaLedger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsQuotaAvailable reports whether estimate more usage fits in the user's quota.
func (l *Ledger) IsQuotaAvailable(ctx context.Context, userID, resource string, estimate float64) (bool, error) {
	state, err := l.store.QuotaState(ctx, userID, resource, l.now())
	if err != nil {
		return false, fmt.Errorf("quota state: %w", err)
	}
	return state.Admits(estimate), nil
}

// IncQuotaUsage appends a usage delta after a successful paid call.
func (l *Ledger) IncQuotaUsage(ctx context.Context, userID, resource string, cost float64) error {
	return l.store.AddUsage(ctx, Usage{
		UserID:    userID,
		Resource:  resource,
		Amount:    cost,
		CreatedAt: l.now(),
	})
}

// State returns the user's current quota position.
func (l *Ledger) State(ctx context.Context, userID, resource string) (State, error) {
	return l.store.QuotaState(ctx, userID, resource, l.now())
}

// Grant adds quota for a user.
func (l *Ledger) Grant(ctx context.Context, grant Grant) (int64, error) {
	if grant.UserID == "" || grant.Resource == "" {
		return 0, fmt.Errorf("grant requires user and resource")
	}
	if !grant.EndsAt.After(grant.StartsAt) {
		return 0, fmt.Errorf("grant must end after it starts")
	}
	id, err := l.store.AddGrant(ctx, grant)
	if err != nil {
		return 0, fmt.Errorf("add grant: %w", err)
	}
	l.logger.Info().
		Str("user_id", grant.UserID).
		Str("resource", grant.Resource).
		Float64("amount", grant.Amount).
		Time("ends_at", grant.EndsAt).
		Msg("Quota granted")
	return id, nil
}

// Reserve records estimate as pending usage if it fits. When it does not fit
// the returned reservation is nil and ok is false.
func (l *Ledger) Reserve(ctx context.Context, userID, resource string, estimate float64) (*Reservation, State, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := uuid.NewString()
	state, ok, err := l.store.ReserveUsage(ctx, Usage{
		UserID:        userID,
		Resource:      resource,
		Amount:        estimate,
		ReservationID: id,
		CreatedAt:     l.now(),
	}, l.now())
	if err != nil {
		return nil, state, false, fmt.Errorf("reserve quota: %w", err)
	}
	if !ok {
		l.logger.Info().
			Str("user_id", userID).
			Str("resource", resource).
			Float64("estimate", estimate).
			Float64("used", state.UsedAmount).
			Float64("total", state.TotalQuota).
			Msg("Quota reservation denied")
		return nil, state, false, nil
	}

	return &Reservation{
		ledger:   l,
		ID:       id,
		UserID:   userID,
		Resource: resource,
		Estimate: estimate,
	}, state, true, nil
}

// Reservation is estimated usage already counted against a user's quota.
// Exactly one of Commit or Release takes effect; later calls are no-ops.
type Reservation struct {
	ledger *Ledger

	ID       string
	UserID   string
	Resource string
	Estimate float64

	mu   sync.Mutex
	done bool
}

// Commit replaces the estimate with the actual cost by appending the difference.
func (r *Reservation) Commit(ctx context.Context, actual float64) error {
	return r.settle(ctx, actual-r.Estimate)
}

// Release returns the reserved estimate.
func (r *Reservation) Release(ctx context.Context) error {
	return r.settle(ctx, -r.Estimate)
}

func (r *Reservation) settle(ctx context.Context, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	r.done = true
	if delta == 0 {
		return nil
	}
	return r.ledger.store.AddUsage(ctx, Usage{
		UserID:        r.UserID,
		Resource:      r.Resource,
		Amount:        delta,
		ReservationID: r.ID,
		CreatedAt:     r.ledger.now(),
	})
}
