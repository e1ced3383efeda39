package ollama

import (
	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// ToOllamaMessages converts llm.Messages to Ollama's chat message format.
func ToOllamaMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return ToOllamaMessage(msg)
	})
}

// ToOllamaMessage converts a single llm.Message to Ollama format.
func ToOllamaMessage(msg llm.Message) api.Message {
	role := "user"
	switch msg.Role {
	case llm.RoleAssistant:
		role = "assistant"
	case llm.RoleSystem:
		role = "system"
	}
	return api.Message{
		Role:    role,
		Content: msg.Text(),
	}
}

// FromChatResponse converts a final Ollama chat response to an llm.Response.
// Ollama reports prompt and eval counts only when the model was actually run.
func FromChatResponse(resp api.ChatResponse) *llm.Response {
	out := &llm.Response{
		Model:      resp.Model,
		Kind:       llm.ResultKindOllama,
		StopReason: "stop",
		Usage: &llm.Usage{
			InputTokens:  int64(resp.PromptEvalCount),
			OutputTokens: int64(resp.EvalCount),
		},
	}
	if resp.DoneReason == "length" {
		out.StopReason = "max_tokens"
	}
	if resp.Message.Content != "" {
		out.Content = []llm.ContentBlock{{
			Type: llm.ContentBlockTypeText,
			Text: resp.Message.Content,
		}}
	}
	return out
}
