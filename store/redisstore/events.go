// Package redisstore keeps the rate-limit event log in Redis sorted sets so
// several processes can share one limiter.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aschepis/backscratcher/llmcore/ratelimit"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "llmcore:ratelimit:"

// Config describes the Redis connection.
type Config struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EventLog stores one sorted set per API. Members are unique IDs scored by
// the event time in milliseconds.
type EventLog struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*EventLog, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // Cleanup on error
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *EventLog {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &EventLog{client: client, prefix: prefix}
}

// Close closes the client.
func (l *EventLog) Close() error {
	return l.client.Close()
}

func (l *EventLog) key(apiID string) string {
	return l.prefix + apiID
}

// AppendEvent implements ratelimit.EventLog.
func (l *EventLog) AppendEvent(ctx context.Context, apiID string, at time.Time) error {
	err := l.client.ZAdd(ctx, l.key(apiID), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: uuid.NewString(),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis append event: %w", err)
	}
	return nil
}

// WindowStats implements ratelimit.EventLog.
func (l *EventLog) WindowStats(ctx context.Context, apiID string, since time.Time) (int, time.Time, error) {
	// "(" makes the lower bound exclusive.
	lower := "(" + strconv.FormatInt(since.UnixMilli(), 10)

	pipe := l.client.Pipeline()
	countCmd := pipe.ZCount(ctx, l.key(apiID), lower, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, l.key(apiID), &redis.ZRangeBy{
		Min:   lower,
		Max:   "+inf",
		Count: 1,
	})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("redis window stats: %w", err)
	}

	count := int(countCmd.Val())
	oldest := oldestCmd.Val()
	if count == 0 || len(oldest) == 0 {
		return 0, time.Time{}, nil
	}
	return count, time.UnixMilli(int64(oldest[0].Score)), nil
}

// PruneEvents implements ratelimit.EventLog by trimming every set under the
// prefix.
func (l *EventLog) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	var (
		total  int64
		cursor uint64
	)
	for {
		keys, next, err := l.client.Scan(ctx, cursor, l.prefix+"*", 100).Result()
		if err != nil {
			return total, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			n, err := l.client.ZRemRangeByScore(ctx, key, "-inf", upper).Result()
			if err != nil {
				return total, fmt.Errorf("redis prune %s: %w", key, err)
			}
			total += n
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

var _ ratelimit.EventLog = (*EventLog)(nil)
