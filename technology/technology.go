// Package technology describes the model backends requests can be routed to.
package technology

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aschepis/backscratcher/llmcore/llm"
)

// ErrNotFound is returned when a reference matches no technology.
var ErrNotFound = errors.New("technology not found")

// Technology is one routable model: a provider protocol, a model name and
// the pricing and rate-limit settings that apply to it.
type Technology struct {
	ID       string `yaml:"id" json:"id"`
	Variant  string `yaml:"variant" json:"variant"`   // Logical name, also the pricing key prefix
	Provider string `yaml:"provider" json:"provider"` // Protocol: openai, anthropic, ollama, gemini, mock
	Model    string `yaml:"model" json:"model"`

	PricingTier       string   `yaml:"pricing_tier" json:"pricing_tier"`               // "free" or "paid"
	RateLimitedAPIID  string   `yaml:"rate_limited_api_id" json:"rate_limited_api_id"` // Shared limiter bucket; defaults to ID
	RequestsPerMinute int      `yaml:"requests_per_minute" json:"requests_per_minute"` // 0 means not rate limited
	MaxOutputTokens   int64    `yaml:"max_output_tokens" json:"max_output_tokens"`
	Temperature       *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// IsFree reports whether calls to this technology cost nothing.
func (t *Technology) IsFree() bool {
	return t.PricingTier == llm.TierFree
}

// Tier returns the pricing tier, defaulting to paid.
func (t *Technology) Tier() string {
	if t.PricingTier == "" {
		return llm.TierPaid
	}
	return t.PricingTier
}

// RateLimitKey is the bucket rate-limit events are recorded under.
func (t *Technology) RateLimitKey() string {
	if t.RateLimitedAPIID != "" {
		return t.RateLimitedAPIID
	}
	return t.ID
}

// ClientKey identifies the provider client this technology is served by.
func (t *Technology) ClientKey() llm.ClientKey {
	return llm.ClientKey{Provider: t.Provider, Tier: t.Tier()}
}

// Catalog resolves technologies by ID or variant name.
type Catalog struct {
	mu        sync.RWMutex
	byID      map[string]*Technology
	byVariant map[string]*Technology
}

// NewCatalog builds a catalog. IDs must be unique; when several technologies
// share a variant, the first one listed answers variant lookups.
func NewCatalog(techs []Technology) (*Catalog, error) {
	c := &Catalog{
		byID:      make(map[string]*Technology, len(techs)),
		byVariant: make(map[string]*Technology, len(techs)),
	}
	for i := range techs {
		if err := c.add(techs[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(t Technology) error {
	if t.ID == "" {
		return fmt.Errorf("technology id is required")
	}
	if t.Provider == "" {
		return fmt.Errorf("technology %s: provider is required", t.ID)
	}
	if _, exists := c.byID[t.ID]; exists {
		return fmt.Errorf("duplicate technology id %q", t.ID)
	}
	if t.Variant == "" {
		t.Variant = t.ID
	}
	tech := t
	c.byID[t.ID] = &tech
	if _, exists := c.byVariant[t.Variant]; !exists {
		c.byVariant[t.Variant] = &tech
	}
	return nil
}

// Resolve looks a technology up by ID first, then by variant.
func (c *Catalog) Resolve(ctx context.Context, ref string) (*Technology, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.byID[ref]; ok {
		return t, nil
	}
	if t, ok := c.byVariant[ref]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// All returns every technology in the catalog.
func (c *Catalog) All() []*Technology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Technology, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	return out
}
