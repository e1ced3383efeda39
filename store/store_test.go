package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/llmcore/cache"
	"github.com/aschepis/backscratcher/llmcore/migrations"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/aschepis/backscratcher/llmcore/ratelimit"
	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/rs/zerolog"
)

// setupTestStore creates an in-memory database and runs migrations.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Every connection to :memory: is a fresh database.
	db.SetMaxOpenConns(1)

	s := New(db, migrations.DialectSQLite, zerolog.Nop())
	if err := s.Migrate(); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheEntryLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry, err := s.GetCacheEntry(ctx, "tech", "k1")
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if entry != nil {
		t.Fatalf("Expected no entry, got %+v", entry)
	}

	err = s.UpsertCacheEntry(ctx, &cache.Entry{
		TechID:         "tech",
		CacheKey:       "k1",
		InputText:      "user:hi",
		OutputText:     "hello",
		OutputMessages: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("UpsertCacheEntry: %v", err)
	}

	err = s.UpsertCacheEntry(ctx, &cache.Entry{
		TechID:         "tech",
		CacheKey:       "k1",
		InputText:      "user:hi",
		OutputText:     "hello again",
		OutputMessages: []string{"hello", "again"},
		OutputJSON:     json.RawMessage(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("second UpsertCacheEntry: %v", err)
	}

	entry, err = s.GetCacheEntry(ctx, "tech", "k1")
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if entry == nil || entry.OutputText != "hello again" {
		t.Fatalf("Expected last write to win, got %+v", entry)
	}
	if len(entry.OutputMessages) != 2 || string(entry.OutputJSON) != `{"a":1}` {
		t.Errorf("Unexpected entry contents %+v", entry)
	}

	deleted, err := s.DeleteCacheEntry(ctx, "tech", "k1")
	if err != nil || !deleted {
		t.Fatalf("DeleteCacheEntry: deleted=%v err=%v", deleted, err)
	}
	if entry, _ := s.GetCacheEntry(ctx, "tech", "k1"); entry != nil {
		t.Error("Expected entry to be gone after delete")
	}
}

func TestCacheThroughStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	c := cache.New(s, zerolog.Nop())

	lookup, err := c.TryGet(ctx, "tech", nil, false)
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if err := c.Save(ctx, cache.SaveParams{TechID: "tech", CacheKey: lookup.CacheKey, InputText: lookup.InputText, OutputText: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lookup, err = c.TryGet(ctx, "tech", nil, false)
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if lookup.Entry == nil {
		t.Error("Expected hit after save")
	}
}

func TestRateLimitEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 5 * time.Second, 20 * time.Second} {
		if err := s.AppendEvent(ctx, "api", base.Add(offset)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	_ = s.AppendEvent(ctx, "other", base)

	count, oldest, err := s.WindowStats(ctx, "api", base)
	if err != nil {
		t.Fatalf("WindowStats: %v", err)
	}
	if count != 2 || !oldest.Equal(base.Add(5*time.Second)) {
		t.Errorf("Expected 2 events from t=5s, got count=%d oldest=%v", count, oldest)
	}

	count, oldest, err = s.WindowStats(ctx, "api", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("WindowStats: %v", err)
	}
	if count != 0 || !oldest.IsZero() {
		t.Errorf("Expected empty window, got count=%d oldest=%v", count, oldest)
	}

	pruned, err := s.PruneEvents(ctx, base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("PruneEvents: %v", err)
	}
	if pruned != 3 {
		t.Errorf("Expected 3 pruned events, got %d", pruned)
	}
}

func TestLimiterThroughStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(s, zerolog.Nop(), ratelimit.WithClock(func() time.Time { return now }))
	tech := &technology.Technology{ID: "t", RequestsPerMinute: 2}

	_ = limiter.Record(ctx, tech)
	_ = limiter.Record(ctx, tech)
	now = now.Add(10 * time.Second)

	status, err := limiter.IsRateLimited(ctx, tech)
	if err != nil {
		t.Fatalf("IsRateLimited: %v", err)
	}
	if !status.IsRateLimited || status.WaitSeconds != 50 {
		t.Errorf("Expected 50s wait, got %+v", status)
	}
}

func TestQuotaLedgerThroughStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger(s, zerolog.Nop(), quota.WithClock(func() time.Time { return now }))

	ok, err := ledger.IsQuotaAvailable(ctx, "u1", "chat", 1)
	if err != nil {
		t.Fatalf("IsQuotaAvailable: %v", err)
	}
	if ok {
		t.Fatal("Expected deny without grants")
	}

	_, err = ledger.Grant(ctx, quota.Grant{
		UserID:   "u1",
		Resource: "chat",
		Amount:   500,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(30 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := ledger.IncQuotaUsage(ctx, "u1", "chat", 480); err != nil {
		t.Fatalf("IncQuotaUsage: %v", err)
	}

	tests := []struct {
		estimate float64
		want     bool
	}{
		{estimate: 20, want: true},
		{estimate: 21, want: false},
	}
	for _, tt := range tests {
		got, err := ledger.IsQuotaAvailable(ctx, "u1", "chat", tt.estimate)
		if err != nil {
			t.Fatalf("IsQuotaAvailable: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsQuotaAvailable(%v) = %v, want %v", tt.estimate, got, tt.want)
		}
	}

	res, _, ok, err := ledger.Reserve(ctx, "u1", "chat", 15)
	if err != nil || !ok {
		t.Fatalf("Reserve: ok=%v err=%v", ok, err)
	}
	if err := res.Commit(ctx, 10); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	state, err := ledger.State(ctx, "u1", "chat")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.UsedAmount != 490 || state.TotalQuota != 500 {
		t.Errorf("Expected used 490 of 500, got %+v", state)
	}

	if _, _, ok, _ := ledger.Reserve(ctx, "u1", "chat", 11); ok {
		t.Error("Expected reservation beyond remaining quota to be denied")
	}
}

func TestUsageOutsideWindowIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _ = s.AddGrant(ctx, quota.Grant{UserID: "u", Resource: "chat", Amount: 100, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)})
	_ = s.AddUsage(ctx, quota.Usage{UserID: "u", Resource: "chat", Amount: 70, CreatedAt: now.Add(-2 * time.Hour)})
	_ = s.AddUsage(ctx, quota.Usage{UserID: "u", Resource: "chat", Amount: 5, CreatedAt: now})

	state, err := s.QuotaState(ctx, "u", "chat", now)
	if err != nil {
		t.Fatalf("QuotaState: %v", err)
	}
	if !state.HasGrant || state.UsedAmount != 5 {
		t.Errorf("Expected only in-window usage, got %+v", state)
	}
}
