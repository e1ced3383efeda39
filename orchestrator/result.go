package orchestrator

import (
	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/providers"
)

// Outcome says how an LLM request ended when it did not fail with an error.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeInsufficientQuota Outcome = "insufficient_quota"
	OutcomeSkipped           Outcome = "skipped" // Outbound calls are disabled
)

// Request is one application-level call to a language model.
type Request struct {
	// TechRef is a technology ID or variant name.
	TechRef string `json:"tech"`
	// UserID is charged for the call. Empty means no quota accounting.
	UserID         string             `json:"user_id,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Agent          providers.Identity `json:"agent"`
	Anonymize      bool               `json:"anonymize,omitempty"`
	Messages       []llm.Message      `json:"-"`
	SystemPrompt   string             `json:"system_prompt,omitempty"`
	JSONMode       bool               `json:"json_mode,omitempty"`
	RequireArray   bool               `json:"require_array,omitempty"`
	TryCache       bool               `json:"try_cache,omitempty"`
}

// Result is the outcome of an LLM request. It is built once and never
// modified after LLMRequest returns it.
type Result struct {
	Status           bool           `json:"status"`
	Outcome          Outcome        `json:"outcome"`
	Message          string         `json:"message,omitempty"` // Readable reason when Status is false
	IsRateLimited    bool           `json:"is_rate_limited"`
	WaitSeconds      int            `json:"wait_seconds,omitempty"`
	RateLimitedAPIID string         `json:"rate_limited_api_id,omitempty"`
	Messages         []string       `json:"messages,omitempty"`
	JSON             any            `json:"json,omitempty"`
	Model            string         `json:"model,omitempty"`
	Kind             llm.ResultKind `json:"kind,omitempty"`
	InputTokens      int64          `json:"input_tokens"`
	OutputTokens     int64          `json:"output_tokens"`
	CostInCents      float64        `json:"cost_in_cents"`
	FromCache        bool           `json:"from_cache"`
	CacheKey         string         `json:"cache_key,omitempty"`
	Attempts         int            `json:"attempts"`
}
