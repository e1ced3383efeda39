// Package pricing converts token counts into cost using per-million-token rates.
package pricing

import (
	"errors"
	"fmt"
	"os"

	"github.com/aschepis/backscratcher/llmcore/technology"
	"gopkg.in/yaml.v3"
)

// ErrPricingNotFound is returned when a paid technology has no price entry.
// It is a configuration error and is never retried.
var ErrPricingNotFound = errors.New("pricing not found")

// ResourceChat is the default billable resource.
const ResourceChat = "chat"

// Rate holds dollar prices per million input and output tokens.
type Rate struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Tier is a rate that applies to requests within a total-token bound.
type Tier struct {
	Rate      `yaml:",inline"`
	TokensLte *int64 `yaml:"tokens_lte,omitempty" json:"tokens_lte,omitempty"`
	TokensGt  *int64 `yaml:"tokens_gt,omitempty" json:"tokens_gt,omitempty"`
}

// Entry is either a flat rate or an ordered list of tiers.
type Entry struct {
	Rate  `yaml:",inline"`
	Tiers []Tier `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// RateFor returns the rate that applies to totalTokens. For tiered entries
// the first tier whose tokens_lte bound is >= totalTokens, or whose
// tokens_gt bound is exceeded, wins; otherwise the last tier applies.
func (e Entry) RateFor(totalTokens int64) Rate {
	if len(e.Tiers) == 0 {
		return e.Rate
	}
	for _, tier := range e.Tiers {
		if tier.TokensLte != nil && *tier.TokensLte >= totalTokens {
			return tier.Rate
		}
		if tier.TokensGt != nil && totalTokens > *tier.TokensGt {
			return tier.Rate
		}
	}
	return e.Tiers[len(e.Tiers)-1].Rate
}

// Table maps "variant/tier/resource" keys to price entries.
type Table map[string]Entry

// Key builds a table key.
func Key(variant, tier, resource string) string {
	return variant + "/" + tier + "/" + resource
}

// Parse reads a YAML price table.
func Parse(data []byte) (Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pricing table: %w", err)
	}
	return table, nil
}

// LoadFile reads a YAML price table from path.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}
	return Parse(data)
}

// Lookup returns the entry for key.
func (t Table) Lookup(key string) (Entry, error) {
	entry, ok := t[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrPricingNotFound, key)
	}
	return entry, nil
}

// CalcCostInCents prices a call. Free-tier technologies always cost 0.
func (t Table) CalcCostInCents(tech *technology.Technology, resource string, inputTokens, outputTokens int64) (float64, error) {
	if tech.IsFree() {
		return 0, nil
	}
	if resource == "" {
		resource = ResourceChat
	}

	entry, err := t.Lookup(Key(tech.Variant, tech.Tier(), resource))
	if err != nil {
		return 0, err
	}

	rate := entry.RateFor(inputTokens + outputTokens)
	dollars := (float64(inputTokens)*rate.Input + float64(outputTokens)*rate.Output) / 1_000_000
	return dollars * 100, nil
}
