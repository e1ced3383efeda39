package llm

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
// This is provider-neutral and can represent user, assistant, or system messages.
type Message struct {
	Role    MessageRole
	Content []ContentBlock
}

// ContentBlock represents a single content block within a message.
type ContentBlock struct {
	Type ContentBlockType
	Text string
}

// ContentBlockType represents the type of content block.
type ContentBlockType string

const (
	ContentBlockTypeText ContentBlockType = "text"
)

// ResultKind tags which adapter produced a Response.
type ResultKind string

const (
	ResultKindOpenAI    ResultKind = "openai"
	ResultKindAnthropic ResultKind = "anthropic"
	ResultKindOllama    ResultKind = "ollama"
	ResultKindGemini    ResultKind = "gemini"
	ResultKindMock      ResultKind = "mock"
)

// Request represents a complete LLM API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
	JSONMode    bool     // Ask the provider for a JSON response
}

// Response represents a complete LLM API response.
type Response struct {
	Content    []ContentBlock
	Usage      *Usage
	StopReason string
	Model      string
	Kind       ResultKind
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// HasUsage reports whether the provider returned exact token counts.
func (u *Usage) HasUsage() bool {
	return u != nil && (u.InputTokens > 0 || u.OutputTokens > 0)
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{
				Type: ContentBlockTypeText,
				Text: text,
			},
		},
	}
}

// Text joins the text parts of the message with newlines.
func (m Message) Text() string {
	parts := lo.FilterMap(m.Content, func(b ContentBlock, _ int) (string, bool) {
		return b.Text, b.Type == ContentBlockTypeText
	})
	return strings.Join(parts, "\n")
}

// Texts returns the text of every text block in the response, in order.
func (r *Response) Texts() []string {
	if r == nil {
		return nil
	}
	return lo.FilterMap(r.Content, func(b ContentBlock, _ int) (string, bool) {
		return b.Text, b.Type == ContentBlockTypeText
	})
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
