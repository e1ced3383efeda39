package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/rs/zerolog"
)

type memLog struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func newMemLog() *memLog {
	return &memLog{events: make(map[string][]time.Time)}
}

func (m *memLog) AppendEvent(ctx context.Context, apiID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[apiID] = append(m.events[apiID], at)
	return nil
}

func (m *memLog) WindowStats(ctx context.Context, apiID string, since time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int
	var oldest time.Time
	for _, at := range m.events[apiID] {
		if !at.After(since) {
			continue
		}
		if count == 0 || at.Before(oldest) {
			oldest = at
		}
		count++
	}
	return count, oldest, nil
}

func (m *memLog) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestWindowRollover(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(newMemLog(), zerolog.Nop(), WithClock(clock.now))
	tech := &technology.Technology{ID: "gpt", RequestsPerMinute: 2}

	for i := 0; i < 2; i++ {
		status, err := limiter.IsRateLimited(ctx, tech)
		if err != nil {
			t.Fatalf("IsRateLimited: %v", err)
		}
		if status.IsRateLimited {
			t.Fatalf("call %d unexpectedly limited", i+1)
		}
		if err := limiter.Record(ctx, tech); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	clock.advance(10 * time.Second)
	status, err := limiter.IsRateLimited(ctx, tech)
	if err != nil {
		t.Fatalf("IsRateLimited: %v", err)
	}
	if !status.IsRateLimited || status.WaitSeconds != 50 {
		t.Errorf("Expected limited with 50s wait at t=10s, got %+v", status)
	}
	if status.RateLimitedAPIID != "gpt" {
		t.Errorf("Expected api id gpt, got %q", status.RateLimitedAPIID)
	}

	clock.advance(51 * time.Second)
	status, err = limiter.IsRateLimited(ctx, tech)
	if err != nil {
		t.Fatalf("IsRateLimited: %v", err)
	}
	if status.IsRateLimited {
		t.Errorf("Expected call at t=61s to be admitted, got %+v", status)
	}
}

func TestUnlimitedTechnology(t *testing.T) {
	log := newMemLog()
	limiter := NewLimiter(log, zerolog.Nop())
	tech := &technology.Technology{ID: "local"}

	status, err := limiter.IsRateLimited(context.Background(), tech)
	if err != nil {
		t.Fatalf("IsRateLimited: %v", err)
	}
	if status != nil {
		t.Errorf("Expected nil status for unlimited technology, got %+v", status)
	}
	if err := limiter.Record(context.Background(), tech); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(log.events) != 0 {
		t.Error("Unlimited technologies must not append events")
	}
}

func TestSharedAPIBucket(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(newMemLog(), zerolog.Nop(), WithClock(clock.now))
	a := &technology.Technology{ID: "a", RateLimitedAPIID: "shared-key", RequestsPerMinute: 1}
	b := &technology.Technology{ID: "b", RateLimitedAPIID: "shared-key", RequestsPerMinute: 1}

	if err := limiter.Record(ctx, a); err != nil {
		t.Fatalf("Record: %v", err)
	}
	clock.advance(30 * time.Second)

	status, err := limiter.IsRateLimited(ctx, b)
	if err != nil {
		t.Fatalf("IsRateLimited: %v", err)
	}
	if !status.IsRateLimited || status.WaitSeconds != 30 {
		t.Errorf("Expected shared bucket to limit b for 30s, got %+v", status)
	}
}

func TestWaitRoundsUp(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewLimiter(newMemLog(), zerolog.Nop(), WithClock(clock.now))
	tech := &technology.Technology{ID: "x", RequestsPerMinute: 1}

	_ = limiter.Record(ctx, tech)
	clock.advance(59*time.Second + 500*time.Millisecond)

	status, _ := limiter.IsRateLimited(ctx, tech)
	if !status.IsRateLimited || status.WaitSeconds != 1 {
		t.Errorf("Expected a 1s wait for the last half second, got %+v", status)
	}
}

func TestAdmitTakesEachSlotOnce(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	events := newMemLog()
	limiter := NewLimiter(events, zerolog.Nop(), WithClock(clock.now))
	tech := &technology.Technology{ID: "x", RequestsPerMinute: 2}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		limited  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := limiter.Admit(ctx, tech)
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if status.IsRateLimited {
				limited++
				return
			}
			admitted++
		}()
	}
	wg.Wait()

	if admitted != 2 || limited != 8 {
		t.Errorf("Expected 2 admitted and 8 limited, got %d and %d", admitted, limited)
	}
	if got := len(events.events["x"]); got != 2 {
		t.Errorf("Expected one event per admitted call, got %d", got)
	}

	clock.advance(Window)
	if status, _ := limiter.Admit(ctx, tech); status.IsRateLimited {
		t.Errorf("Expected admission after the window rolls over, got %+v", status)
	}
}

func TestAdmitUnlimitedTechnology(t *testing.T) {
	events := newMemLog()
	limiter := NewLimiter(events, zerolog.Nop())

	status, err := limiter.Admit(context.Background(), &technology.Technology{ID: "free"})
	if err != nil || status != nil {
		t.Fatalf("Expected nil status for an unlimited technology, got %+v, %v", status, err)
	}
	if len(events.events) != 0 {
		t.Error("Unlimited technologies must not append events")
	}
}
