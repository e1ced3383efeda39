package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/llmcore/cache"
)

var cacheColumns = []string{"input_text", "output_text", "output_messages", "output_json"}

// GetCacheEntry implements cache.Store.
func (s *Store) GetCacheEntry(ctx context.Context, techID, cacheKey string) (*cache.Entry, error) {
	query := sq.Select(cacheColumns...).
		From("cache_entries").
		Where(sq.Eq{"tech_id": techID, "cache_key": cacheKey})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		messagesJSON string
		outputJSON   sql.NullString
	)
	entry := &cache.Entry{TechID: techID, CacheKey: cacheKey}
	err = s.db.QueryRowContext(ctx, queryStr, args...).Scan(&entry.InputText, &entry.OutputText, &messagesJSON, &outputJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &entry.OutputMessages); err != nil {
		return nil, fmt.Errorf("decode cached messages: %w", err)
	}
	if outputJSON.Valid && outputJSON.String != "" {
		entry.OutputJSON = json.RawMessage(outputJSON.String)
	}
	return entry, nil
}

// UpsertCacheEntry implements cache.Store. The last write for a key wins.
func (s *Store) UpsertCacheEntry(ctx context.Context, entry *cache.Entry) error {
	messages := entry.OutputMessages
	if messages == nil {
		messages = []string{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode cached messages: %w", err)
	}
	var outputJSON any
	if len(entry.OutputJSON) > 0 {
		outputJSON = string(entry.OutputJSON)
	}

	now := time.Now().Unix()
	query := sq.Insert("cache_entries").
		Columns("tech_id", "cache_key", "input_text", "output_text", "output_messages", "output_json", "created_at", "updated_at").
		Values(entry.TechID, entry.CacheKey, entry.InputText, entry.OutputText, string(messagesJSON), outputJSON, now, now)

	if s.isMySQL() {
		query = query.Suffix("ON DUPLICATE KEY UPDATE input_text = VALUES(input_text), output_text = VALUES(output_text), " +
			"output_messages = VALUES(output_messages), output_json = VALUES(output_json), updated_at = VALUES(updated_at)")
	} else {
		query = query.Suffix("ON CONFLICT(tech_id, cache_key) DO UPDATE SET input_text = excluded.input_text, " +
			"output_text = excluded.output_text, output_messages = excluded.output_messages, " +
			"output_json = excluded.output_json, updated_at = excluded.updated_at")
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry implements cache.Store.
func (s *Store) DeleteCacheEntry(ctx context.Context, techID, cacheKey string) (bool, error) {
	queryStr, args, err := sq.Delete("cache_entries").
		Where(sq.Eq{"tech_id": techID, "cache_key": cacheKey}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

var _ cache.Store = (*Store)(nil)
