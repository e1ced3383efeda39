package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/llmcore/quota"
)

// AddGrant implements quota.Store.
func (s *Store) AddGrant(ctx context.Context, grant quota.Grant) (int64, error) {
	queryStr, args, err := sq.Insert("quota_grants").
		Columns("user_id", "resource", "amount", "starts_at", "ends_at", "created_at").
		Values(grant.UserID, grant.Resource, grant.Amount, grant.StartsAt.Unix(), grant.EndsAt.Unix(), time.Now().Unix()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert grant: %w", err)
	}
	return res.LastInsertId()
}

// AddUsage implements quota.Store.
func (s *Store) AddUsage(ctx context.Context, usage quota.Usage) error {
	return addUsage(ctx, s.db, usage)
}

func addUsage(ctx context.Context, q querier, usage quota.Usage) error {
	var reservationID any
	if usage.ReservationID != "" {
		reservationID = usage.ReservationID
	}
	queryStr, args, err := sq.Insert("quota_usage").
		Columns("user_id", "resource", "amount", "reservation_id", "created_at").
		Values(usage.UserID, usage.Resource, usage.Amount, reservationID, usage.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := q.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// QuotaState implements quota.Store.
func (s *Store) QuotaState(ctx context.Context, userID, resource string, now time.Time) (quota.State, error) {
	return quotaState(ctx, s.db, userID, resource, now)
}

// ReserveUsage implements quota.Store. The check and the append share one
// transaction; on MySQL the user's grant rows are locked for its duration.
func (s *Store) ReserveUsage(ctx context.Context, usage quota.Usage, now time.Time) (quota.State, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return quota.State{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // No-op after commit
	}()

	if s.isMySQL() {
		queryStr, args, err := sq.Select("id").
			From("quota_grants").
			Where(sq.Eq{"user_id": usage.UserID, "resource": usage.Resource}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return quota.State{}, false, fmt.Errorf("build query: %w", err)
		}
		rows, err := tx.QueryContext(ctx, queryStr, args...)
		if err != nil {
			return quota.State{}, false, fmt.Errorf("lock grants: %w", err)
		}
		_ = rows.Close() //nolint:errcheck // Lock is held by the transaction
	}

	state, err := quotaState(ctx, tx, usage.UserID, usage.Resource, now)
	if err != nil {
		return quota.State{}, false, err
	}
	if !state.Admits(usage.Amount) {
		return state, false, nil
	}
	if err := addUsage(ctx, tx, usage); err != nil {
		return state, false, err
	}
	if err := tx.Commit(); err != nil {
		return state, false, fmt.Errorf("commit reservation: %w", err)
	}
	return state, true, nil
}

func quotaState(ctx context.Context, q querier, userID, resource string, now time.Time) (quota.State, error) {
	state := quota.State{UserID: userID, Resource: resource}

	queryStr, args, err := sq.Select("COALESCE(SUM(amount), 0)", "COUNT(*)", "MIN(starts_at)", "MAX(ends_at)").
		From("quota_grants").
		Where(sq.Eq{"user_id": userID, "resource": resource}).
		Where(sq.LtOrEq{"starts_at": now.Unix()}).
		Where(sq.Gt{"ends_at": now.Unix()}).
		ToSql()
	if err != nil {
		return state, fmt.Errorf("build query: %w", err)
	}

	var (
		count      int64
		start, end sql.NullInt64
	)
	if err := q.QueryRowContext(ctx, queryStr, args...).Scan(&state.TotalQuota, &count, &start, &end); err != nil {
		return state, fmt.Errorf("query grants: %w", err)
	}
	if count == 0 || !start.Valid || !end.Valid {
		return state, nil
	}
	state.HasGrant = true
	state.WindowStart = time.Unix(start.Int64, 0)
	state.WindowEnd = time.Unix(end.Int64, 0)

	queryStr, args, err = sq.Select("COALESCE(SUM(amount), 0)").
		From("quota_usage").
		Where(sq.Eq{"user_id": userID, "resource": resource}).
		Where(sq.GtOrEq{"created_at": start.Int64}).
		Where(sq.Lt{"created_at": end.Int64}).
		ToSql()
	if err != nil {
		return state, fmt.Errorf("build query: %w", err)
	}
	if err := q.QueryRowContext(ctx, queryStr, args...).Scan(&state.UsedAmount); err != nil {
		return state, fmt.Errorf("query usage: %w", err)
	}
	return state, nil
}

var _ quota.Store = (*Store)(nil)
