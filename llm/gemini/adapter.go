package gemini

import (
	"github.com/aschepis/backscratcher/llmcore/llm"
	"google.golang.org/genai"
)

// systemAck is the model turn inserted after the folded system prompt so the
// conversation keeps alternating user and model turns.
const systemAck = "OK"

// ToContents converts messages to Gemini contents. The system prompt, and any
// system-role messages, are sent as a leading user turn followed by a short
// model acknowledgement.
func ToContents(system string, msgs []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs)+2)

	var rest []llm.Message
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Text()
			continue
		}
		rest = append(rest, msg)
	}

	if system != "" {
		contents = append(contents,
			genai.NewContentFromText(system, genai.RoleUser),
			genai.NewContentFromText(systemAck, genai.RoleModel),
		)
	}

	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text(), role))
	}
	return contents
}

// FromResponse converts a Gemini response into an llm.Response.
func FromResponse(resp *genai.GenerateContentResponse) *llm.Response {
	out := &llm.Response{
		Kind:       llm.ResultKindGemini,
		StopReason: "stop",
		Usage:      &llm.Usage{},
	}
	if resp == nil {
		return out
	}

	if text := resp.Text(); text != "" {
		out.Content = []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: text}}
	}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		out.StopReason = "max_tokens"
	}
	return out
}
