package llm

import (
	"strings"

	"github.com/samber/lo"
)

// EstimateInputTokens approximates the prompt size of msgs: whitespace
// delimited words plus one unit per role marker, scaled by 4/3.
// Exact provider usage always takes precedence over this number.
func EstimateInputTokens(msgs []Message) int64 {
	units := lo.SumBy(msgs, func(m Message) int64 {
		return 1 + lo.SumBy(m.Content, func(b ContentBlock) int64 {
			return int64(len(strings.Fields(b.Text)))
		})
	})
	return scaleWords(units)
}

// EstimateOutputTokens approximates the size of a completion from its text parts.
func EstimateOutputTokens(texts []string) int64 {
	words := lo.SumBy(texts, func(s string) int64 {
		return int64(len(strings.Fields(s)))
	})
	return scaleWords(words)
}

// scaleWords converts a word count to tokens by scaling it by 4/3, rounding up.
func scaleWords(words int64) int64 {
	return (words*4 + 2) / 3
}
