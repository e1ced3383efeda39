package orchestrator

import (
	"testing"

	"github.com/aschepis/backscratcher/llmcore/llm"
)

func TestBuildMessages(t *testing.T) {
	msgs, err := BuildMessages([]WireMessage{
		{Role: "user", Content: "hi"},
		{Role: "Assistant", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Role != llm.RoleAssistant || msgs[1].Text() != "hello" {
		t.Errorf("Unexpected messages %+v", msgs)
	}

	if _, err := BuildMessages(nil); err == nil {
		t.Error("Expected error for empty conversation")
	}
	if _, err := BuildMessages([]WireMessage{{Role: "system", Content: "x"}}); err == nil {
		t.Error("Expected error for system role")
	}
}
