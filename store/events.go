package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/llmcore/ratelimit"
)

// AppendEvent implements ratelimit.EventLog.
func (s *Store) AppendEvent(ctx context.Context, apiID string, at time.Time) error {
	queryStr, args, err := sq.Insert("ratelimit_events").
		Columns("api_id", "created_at_ms").
		Values(apiID, at.UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("append rate limit event: %w", err)
	}
	return nil
}

// WindowStats implements ratelimit.EventLog.
func (s *Store) WindowStats(ctx context.Context, apiID string, since time.Time) (int, time.Time, error) {
	queryStr, args, err := sq.Select("COUNT(*)", "MIN(created_at_ms)").
		From("ratelimit_events").
		Where(sq.Eq{"api_id": apiID}).
		Where(sq.Gt{"created_at_ms": since.UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build query: %w", err)
	}

	var (
		count  int
		oldest sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("query rate limit window: %w", err)
	}
	if !oldest.Valid {
		return count, time.Time{}, nil
	}
	return count, time.UnixMilli(oldest.Int64), nil
}

// PruneEvents implements ratelimit.EventLog.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	queryStr, args, err := sq.Delete("ratelimit_events").
		Where(sq.Lt{"created_at_ms": before.UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit events: %w", err)
	}
	return res.RowsAffected()
}

var _ ratelimit.EventLog = (*Store)(nil)
