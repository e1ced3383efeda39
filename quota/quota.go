// Package quota tracks per-user spend against time-boxed grants.
//
// Both grants and usage are append-only ledgers. A user's quota is the sum of
// grants active now; usage is the sum of deltas recorded inside the window
// those grants cover. Users without an active grant have no quota.
package quota

import (
	"context"
	"time"
)

// Grant adds Amount (in cents) of quota for a resource during [StartsAt, EndsAt).
type Grant struct {
	ID       int64
	UserID   string
	Resource string
	Amount   float64
	StartsAt time.Time
	EndsAt   time.Time
}

// Usage is one signed delta in the usage ledger.
type Usage struct {
	UserID        string
	Resource      string
	Amount        float64
	ReservationID string
	CreatedAt     time.Time
}

// State is the quota position of one user and resource at a point in time.
type State struct {
	UserID      string    `json:"user_id"`
	Resource    string    `json:"resource"`
	TotalQuota  float64   `json:"total_quota"`
	UsedAmount  float64   `json:"used_amount"`
	HasGrant    bool      `json:"has_grant"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Admits reports whether amount more usage fits in the remaining quota.
func (s State) Admits(amount float64) bool {
	return s.HasGrant && s.UsedAmount+amount <= s.TotalQuota
}

// Remaining returns the unused quota, never below zero.
func (s State) Remaining() float64 {
	if r := s.TotalQuota - s.UsedAmount; r > 0 {
		return r
	}
	return 0
}

// Store persists the grant and usage ledgers.
type Store interface {
	AddGrant(ctx context.Context, grant Grant) (int64, error)
	AddUsage(ctx context.Context, usage Usage) error
	QuotaState(ctx context.Context, userID, resource string, now time.Time) (State, error)
	// ReserveUsage appends usage only if the state at now admits it, as one
	// transaction. It returns the state observed before the append.
	ReserveUsage(ctx context.Context, usage Usage, now time.Time) (State, bool, error)
}
