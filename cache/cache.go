// Package cache is a content-addressed store of prior model outputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/rs/zerolog"
)

// ErrJSONModeUncacheable is returned when a JSON-mode request reaches the
// cache. Structured output is only trusted after validation, so it is never
// cached.
var ErrJSONModeUncacheable = errors.New("json mode requests cannot use the response cache")

// Entry is one cached model output, unique per (TechID, CacheKey).
type Entry struct {
	TechID         string
	CacheKey       string
	InputText      string
	OutputText     string
	OutputMessages []string
	OutputJSON     json.RawMessage
}

// Store persists cache entries.
type Store interface {
	// GetCacheEntry returns nil without error when no entry exists.
	GetCacheEntry(ctx context.Context, techID, cacheKey string) (*Entry, error)
	// UpsertCacheEntry inserts or replaces the entry for (TechID, CacheKey).
	UpsertCacheEntry(ctx context.Context, entry *Entry) error
	DeleteCacheEntry(ctx context.Context, techID, cacheKey string) (bool, error)
}

// Lookup is the result of TryGet. Entry is nil on a miss; CacheKey and
// InputText are always set so the caller can Save after a miss.
type Lookup struct {
	CacheKey  string
	InputText string
	Entry     *Entry
}

// Stats reports hit and miss counts since startup.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Cache wraps a Store with key derivation and the collision guard.
type Cache struct {
	store  Store
	logger zerolog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache.
func New(store Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger.With().Str("component", "responseCache").Logger(),
	}
}

// Serialize renders messages in the canonical lower-cased form the cache key
// is computed from. Message order is significant.
func Serialize(msgs []llm.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, string(m.Role)+":"+m.Text())
	}
	return strings.ToLower(strings.Join(lines, "\n"))
}

// Key hashes serialized input text.
func Key(inputText string) string {
	sum := sha256.Sum256([]byte(inputText))
	return hex.EncodeToString(sum[:])
}

// TryGet looks up a prior output for msgs. A stored entry whose input text
// differs from msgs is reported as a miss.
func (c *Cache) TryGet(ctx context.Context, techID string, msgs []llm.Message, jsonMode bool) (*Lookup, error) {
	if jsonMode {
		return nil, ErrJSONModeUncacheable
	}

	input := Serialize(msgs)
	lookup := &Lookup{CacheKey: Key(input), InputText: input}

	entry, err := c.store.GetCacheEntry(ctx, techID, lookup.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if entry == nil {
		c.misses.Add(1)
		return lookup, nil
	}
	if entry.InputText != input {
		c.logger.Warn().Str("tech_id", techID).Str("cache_key", lookup.CacheKey).Msg("Cache key collision, ignoring entry")
		c.misses.Add(1)
		return lookup, nil
	}

	c.hits.Add(1)
	lookup.Entry = entry
	return lookup, nil
}

// SaveParams describes an output to cache.
type SaveParams struct {
	TechID         string
	CacheKey       string
	InputText      string
	OutputText     string
	OutputMessages []string
	OutputJSON     json.RawMessage
	JSONMode       bool
}

// Save upserts an entry. Concurrent saves of the same key are last-write-wins.
func (c *Cache) Save(ctx context.Context, p SaveParams) error {
	if p.JSONMode {
		return ErrJSONModeUncacheable
	}
	if p.CacheKey == "" || p.TechID == "" {
		return fmt.Errorf("cache save requires tech id and cache key")
	}
	err := c.store.UpsertCacheEntry(ctx, &Entry{
		TechID:         p.TechID,
		CacheKey:       p.CacheKey,
		InputText:      p.InputText,
		OutputText:     p.OutputText,
		OutputMessages: p.OutputMessages,
		OutputJSON:     p.OutputJSON,
	})
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Invalidate deletes one entry and reports whether it existed.
func (c *Cache) Invalidate(ctx context.Context, techID, cacheKey string) (bool, error) {
	deleted, err := c.store.DeleteCacheEntry(ctx, techID, cacheKey)
	if err != nil {
		return false, fmt.Errorf("cache invalidate: %w", err)
	}
	if deleted {
		c.logger.Info().Str("tech_id", techID).Str("cache_key", cacheKey).Msg("Cache entry invalidated")
	}
	return deleted, nil
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
