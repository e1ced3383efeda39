package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type stubClient struct {
	key    ClientKey
	apiKey string
}

func (s *stubClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Model: req.Model}, nil
}

type mapCredentials map[string]string

func (m mapCredentials) APIKey(ctx context.Context, provider, tier string) (string, error) {
	return m[provider+"/"+tier], nil
}

func countingSpec(calls *atomic.Int32, requiresKey bool) ProviderSpec {
	return ProviderSpec{
		RequiresAPIKey: requiresKey,
		Factory: func(ctx context.Context, key ClientKey, apiKey string) (Client, error) {
			calls.Add(1)
			return &stubClient{key: key, apiKey: apiKey}, nil
		},
	}
}

func TestClientRegistry_IsProviderEnabled(t *testing.T) {
	registry := NewClientRegistry(nil)
	var calls atomic.Int32
	registry.Register(ProviderOllama, countingSpec(&calls, false))

	if !registry.IsProviderEnabled(ProviderOllama) {
		t.Error("ollama should be enabled")
	}
	if registry.IsProviderEnabled(ProviderOpenAI) {
		t.Error("openai should not be enabled")
	}
}

func TestClientRegistry_CachesPerTier(t *testing.T) {
	var calls atomic.Int32
	registry := NewClientRegistry(mapCredentials{"openai/free": "free-key", "openai/paid": "paid-key"})
	registry.Register(ProviderOpenAI, countingSpec(&calls, true))

	ctx := context.Background()
	free1, err := registry.Client(ctx, ClientKey{Provider: ProviderOpenAI, Tier: TierFree})
	if err != nil {
		t.Fatalf("Client(free): %v", err)
	}
	free2, err := registry.Client(ctx, ClientKey{Provider: ProviderOpenAI, Tier: TierFree})
	if err != nil {
		t.Fatalf("Client(free) again: %v", err)
	}
	paid, err := registry.Client(ctx, ClientKey{Provider: ProviderOpenAI, Tier: TierPaid})
	if err != nil {
		t.Fatalf("Client(paid): %v", err)
	}

	if free1 != free2 {
		t.Error("Expected the same client for repeated lookups of one tier")
	}
	if free1 == paid {
		t.Error("Expected different clients for different tiers")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("Expected 2 factory calls, got %d", got)
	}
	if paid.(*stubClient).apiKey != "paid-key" {
		t.Errorf("Expected paid client to use paid key, got %q", paid.(*stubClient).apiKey)
	}
}

func TestClientRegistry_ConcurrentLazyInit(t *testing.T) {
	var calls atomic.Int32
	registry := NewClientRegistry(nil)
	registry.Register(ProviderMock, countingSpec(&calls, false))

	key := ClientKey{Provider: ProviderMock, Tier: TierPaid}
	var wg sync.WaitGroup
	results := make([]Client, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := registry.Client(context.Background(), key)
			if err != nil {
				t.Errorf("Client: %v", err)
				return
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range results[1:] {
		if c != results[0] {
			t.Fatal("Expected every goroutine to observe the same cached client")
		}
	}
}

func TestClientRegistry_MissingCredentials(t *testing.T) {
	var calls atomic.Int32
	registry := NewClientRegistry(mapCredentials{})
	registry.Register(ProviderAnthropic, countingSpec(&calls, true))

	_, err := registry.Client(context.Background(), ClientKey{Provider: ProviderAnthropic, Tier: TierPaid})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("Expected ErrMissingCredentials, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("Factory should not be called without credentials")
	}
}

func TestClientRegistry_UnknownProvider(t *testing.T) {
	registry := NewClientRegistry(nil)
	if _, err := registry.Client(context.Background(), ClientKey{Provider: "nope", Tier: TierFree}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
