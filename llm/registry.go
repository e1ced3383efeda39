package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Pricing tiers. Free and paid credentials for the same backend authenticate
// differently, so clients are never shared across tiers.
const (
	TierFree = "free"
	TierPaid = "paid"
)

// ClientKey uniquely identifies a cached client: one per provider and pricing tier.
type ClientKey struct {
	Provider string
	Tier     string
}

// String returns the "provider/tier" form used in logs.
func (k ClientKey) String() string {
	return k.Provider + "/" + k.Tier
}

// ClientFactory builds a client for a provider and tier. apiKey is empty for
// providers registered without RequiresAPIKey.
type ClientFactory func(ctx context.Context, key ClientKey, apiKey string) (Client, error)

// ProviderSpec describes how to construct clients for one provider.
type ProviderSpec struct {
	Factory        ClientFactory
	RequiresAPIKey bool
}

// ClientRegistry lazily creates and caches provider clients per pricing tier.
// Provider packages are wired in by the caller to avoid import cycles.
type ClientRegistry struct {
	credentials CredentialSource
	middleware  []Middleware

	mu        sync.RWMutex
	providers map[string]ProviderSpec
	clients   map[ClientKey]Client
}

// NewClientRegistry creates an empty registry. Every client it creates is
// wrapped with the given middleware.
func NewClientRegistry(credentials CredentialSource, middleware ...Middleware) *ClientRegistry {
	return &ClientRegistry{
		credentials: credentials,
		middleware:  middleware,
		providers:   make(map[string]ProviderSpec),
		clients:     make(map[ClientKey]Client),
	}
}

// Register enables a provider.
func (r *ClientRegistry) Register(provider string, spec ProviderSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = spec
}

// IsProviderEnabled checks if a provider has been registered.
func (r *ClientRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[provider]
	return ok
}

// Providers returns the registered provider names, sorted.
func (r *ClientRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for p := range r.providers {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Client returns the cached client for key, creating it on first use.
func (r *ClientRegistry) Client(ctx context.Context, key ClientKey) (Client, error) {
	r.mu.RLock()
	if client, ok := r.clients[key]; ok {
		r.mu.RUnlock()
		return client, nil
	}
	spec, ok := r.providers[key.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (enabled: %v)", key.Provider, r.Providers())
	}

	// Build outside the lock; credential lookups may block.
	var apiKey string
	if spec.RequiresAPIKey {
		if r.credentials == nil {
			return nil, fmt.Errorf("%s: %w", key, ErrMissingCredentials)
		}
		var err error
		apiKey, err = r.credentials.APIKey(ctx, key.Provider, key.Tier)
		if err != nil {
			return nil, fmt.Errorf("resolve credentials for %s: %w", key, err)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%s: %w", key, ErrMissingCredentials)
		}
	}

	base, err := spec.Factory(ctx, key, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", key, err)
	}
	client := WrapWithMiddleware(base, r.middleware...)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check: another goroutine might have created it while we were creating
	if existing, ok := r.clients[key]; ok {
		return existing, nil
	}
	r.clients[key] = client
	return client, nil
}
