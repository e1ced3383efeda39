package orchestrator

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/samber/lo"
)

// WireMessage is the transport form of a chat message.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildMessages converts transport messages into the neutral form. Only user
// and assistant turns are accepted; the system prompt travels separately.
func BuildMessages(in []WireMessage) ([]llm.Message, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	for i, m := range in {
		switch llm.MessageRole(strings.ToLower(m.Role)) {
		case llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}
	return lo.Map(in, func(m WireMessage, _ int) llm.Message {
		return llm.NewTextMessage(llm.MessageRole(strings.ToLower(m.Role)), m.Content)
	}), nil
}
