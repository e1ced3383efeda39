package ollama

import (
	"net/http"
	"testing"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/ollama/ollama/api"
)

func TestToOllamaMessages(t *testing.T) {
	got := ToOllamaMessages([]llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "sys"),
		llm.NewTextMessage(llm.RoleUser, "question"),
		llm.NewTextMessage(llm.RoleAssistant, "answer"),
	})

	want := []string{"system", "user", "assistant"}
	for i, role := range want {
		if got[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, got[i].Role)
		}
	}
	if got[1].Content != "question" {
		t.Errorf("Expected content 'question', got %q", got[1].Content)
	}
}

func TestBuildRequestJSONMode(t *testing.T) {
	c := &OllamaClient{model: "llama3"}
	req, err := c.buildRequest(&llm.Request{
		System:    "be brief",
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		MaxTokens: 64,
		JSONMode:  true,
	})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if string(req.Format) != `"json"` {
		t.Errorf("Expected json format, got %s", req.Format)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("Expected system message first, got %+v", req.Messages)
	}
	if req.Options["num_predict"] != 64 {
		t.Errorf("Expected num_predict 64, got %v", req.Options["num_predict"])
	}
	if req.Stream == nil || *req.Stream {
		t.Error("Expected streaming disabled")
	}
}

func TestFromChatResponse(t *testing.T) {
	var resp api.ChatResponse
	resp.Model = "llama3"
	resp.Message = api.Message{Role: "assistant", Content: "ok"}
	resp.PromptEvalCount = 12
	resp.EvalCount = 3

	out := FromChatResponse(resp)
	if out.Kind != llm.ResultKindOllama {
		t.Errorf("Expected ollama kind, got %s", out.Kind)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 3 {
		t.Errorf("Unexpected usage %+v", out.Usage)
	}
	if texts := out.Texts(); len(texts) != 1 || texts[0] != "ok" {
		t.Errorf("Unexpected texts %v", texts)
	}
}

func TestConvertOllamaError(t *testing.T) {
	err := convertOllamaError(api.StatusError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"})
	if !llm.IsServiceUnavailableError(err) {
		t.Errorf("Expected service unavailable error, got %v", err)
	}
}
