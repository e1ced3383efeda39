package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/technology"
)

const tableYAML = `
gpt-4o/paid/chat:
  input: 2.5
  output: 10
gemini-pro/paid/chat:
  tiers:
    - input: 1.25
      output: 5
      tokens_lte: 200000
    - input: 2.5
      output: 15
      tokens_gt: 200000
`

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func loadTable(t *testing.T) Table {
	t.Helper()
	table, err := Parse([]byte(tableYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return table
}

func TestCalcCostInCents(t *testing.T) {
	table := loadTable(t)
	flat := &technology.Technology{ID: "a", Variant: "gpt-4o", PricingTier: llm.TierPaid}
	tiered := &technology.Technology{ID: "b", Variant: "gemini-pro", PricingTier: llm.TierPaid}

	tests := []struct {
		name string
		tech *technology.Technology
		in   int64
		out  int64
		want float64
	}{
		// (1000*2.5 + 500*10) / 1e6 dollars = 0.0075 dollars
		{name: "flat rate", tech: flat, in: 1000, out: 500, want: 0.75},
		// 150k total tokens stays in the lower tier
		{name: "lower tier", tech: tiered, in: 100000, out: 50000, want: (100000*1.25 + 50000*5) / 1e6 * 100},
		// 250k total tokens crosses into the upper tier
		{name: "upper tier", tech: tiered, in: 200000, out: 50000, want: (200000*2.5 + 50000*15) / 1e6 * 100},
		{name: "boundary is inclusive", tech: tiered, in: 200000, out: 0, want: 200000 * 1.25 / 1e6 * 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.CalcCostInCents(tt.tech, ResourceChat, tt.in, tt.out)
			if err != nil {
				t.Fatalf("CalcCostInCents: %v", err)
			}
			if !approxEqual(got, tt.want) {
				t.Errorf("CalcCostInCents() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalcCostFreeTier(t *testing.T) {
	table := Table{}
	free := &technology.Technology{ID: "f", Variant: "unknown", PricingTier: llm.TierFree}
	got, err := table.CalcCostInCents(free, ResourceChat, 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("free tier should never look up pricing: %v", err)
	}
	if got != 0 {
		t.Errorf("Expected zero cost, got %v", got)
	}
}

func TestCalcCostMissingEntry(t *testing.T) {
	table := loadTable(t)
	tech := &technology.Technology{ID: "x", Variant: "nope", PricingTier: llm.TierPaid}
	if _, err := table.CalcCostInCents(tech, ResourceChat, 1, 1); !errors.Is(err, ErrPricingNotFound) {
		t.Errorf("Expected ErrPricingNotFound, got %v", err)
	}
}

func TestRateForFallsBackToLastTier(t *testing.T) {
	lte := int64(10)
	entry := Entry{Tiers: []Tier{
		{Rate: Rate{Input: 1}, TokensLte: &lte},
		{Rate: Rate{Input: 2}},
	}}
	if got := entry.RateFor(50); got.Input != 2 {
		t.Errorf("Expected last tier, got %+v", got)
	}
}
