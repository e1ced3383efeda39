package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/aschepis/backscratcher/llmcore/config"
	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/llm/mock"
	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/rs/zerolog"
)

func newMockGateway(t *testing.T, client *mock.Client) *Gateway {
	t.Helper()
	registry := llm.NewClientRegistry(nil, NewLoggingMiddleware(zerolog.Nop()))
	registry.Register(llm.ProviderMock, llm.ProviderSpec{
		Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
			return client, nil
		},
	})
	return NewGateway(registry, zerolog.Nop())
}

func TestPrepareIdentity(t *testing.T) {
	g := newMockGateway(t, mock.NewClient())
	tech := &technology.Technology{ID: "m", Provider: llm.ProviderMock}
	msgs := []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello there")}
	identity := Identity{Name: "Ada", Role: "a research assistant"}

	tests := []struct {
		name      string
		anonymize bool
		want      string
	}{
		{name: "named", anonymize: false, want: "You are Ada, a research assistant.\n\nBe brief."},
		{name: "anonymous", anonymize: true, want: "Be brief."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := g.Prepare(tech, identity, "Be brief.", msgs, tt.anonymize)
			if p.System != tt.want {
				t.Errorf("System = %q, want %q", p.System, tt.want)
			}
		})
	}
}

func TestPrepareEstimates(t *testing.T) {
	g := newMockGateway(t, mock.NewClient())
	msgs := []llm.Message{llm.NewTextMessage(llm.RoleUser, "one two three four five")}

	p := g.Prepare(&technology.Technology{ID: "m"}, Identity{}, "", msgs, true)
	// 5 words + 1 role marker = 6 units -> 8 tokens
	if p.EstimatedInputTokens != 8 {
		t.Errorf("Expected 8 estimated input tokens, got %d", p.EstimatedInputTokens)
	}
	if p.EstimatedOutputTokens != 8 {
		t.Errorf("Expected output estimate to fall back to input estimate, got %d", p.EstimatedOutputTokens)
	}

	p = g.Prepare(&technology.Technology{ID: "m", MaxOutputTokens: 256}, Identity{}, "", msgs, true)
	if p.EstimatedOutputTokens != 256 {
		t.Errorf("Expected output estimate from max output tokens, got %d", p.EstimatedOutputTokens)
	}
}

func TestPrepareCopiesMessages(t *testing.T) {
	g := newMockGateway(t, mock.NewClient())
	msgs := []llm.Message{llm.NewTextMessage(llm.RoleUser, "a")}
	p := g.Prepare(&technology.Technology{ID: "m"}, Identity{}, "sys", msgs, true)
	msgs[0] = llm.NewTextMessage(llm.RoleUser, "changed")

	if p.Messages[0].Text() != "a" {
		t.Error("Prepared messages must not alias the caller's slice")
	}
	conv := p.Conversation()
	if len(conv) != 2 || conv[0].Role != llm.RoleSystem || conv[0].Text() != "sys" {
		t.Errorf("Unexpected conversation %+v", conv)
	}
}

func TestSendFillsEstimatedUsage(t *testing.T) {
	client := mock.NewClient(
		mock.Step{Text: "three little words"},
		mock.Step{Text: "exact", Usage: &llm.Usage{InputTokens: 11, OutputTokens: 2}},
	)
	g := newMockGateway(t, client)
	tech := &technology.Technology{ID: "m", Provider: llm.ProviderMock, Model: "mock-1", MaxOutputTokens: 64}
	p := g.Prepare(tech, Identity{}, "", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, true)

	resp, err := g.Send(context.Background(), tech, p, true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Usage.InputTokens != p.EstimatedInputTokens || resp.Usage.OutputTokens != 4 {
		t.Errorf("Expected estimated usage, got %+v", resp.Usage)
	}
	if resp.Kind != llm.ResultKindMock || resp.Model != "mock-1" {
		t.Errorf("Unexpected response tags %+v", resp)
	}

	req := client.Requests()[0]
	if !req.JSONMode || req.MaxTokens != 64 || req.Model != "mock-1" {
		t.Errorf("Unexpected request %+v", req)
	}

	resp, err = g.Send(context.Background(), tech, p, false)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Usage.InputTokens != 11 || resp.Usage.OutputTokens != 2 {
		t.Errorf("Expected exact usage to win, got %+v", resp.Usage)
	}
}

func TestSendOutboundDisabled(t *testing.T) {
	client := mock.NewClient()
	g := newMockGateway(t, client)
	g.SetOutboundDisabled(true)
	tech := &technology.Technology{ID: "m", Provider: llm.ProviderMock}

	resp, err := g.Send(context.Background(), tech, g.Prepare(tech, Identity{}, "", nil, true), false)
	if err != nil || resp != nil {
		t.Fatalf("Expected nil response and nil error, got %v, %v", resp, err)
	}
	if client.Calls() != 0 {
		t.Error("Disabled gateway must not reach the client")
	}
}

func TestSendUnknownProvider(t *testing.T) {
	g := newMockGateway(t, mock.NewClient())
	tech := &technology.Technology{ID: "x", Provider: "nope"}
	_, err := g.Send(context.Background(), tech, g.Prepare(tech, Identity{}, "", nil, true), false)
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("Expected unknown provider error, got %v", err)
	}
}

func TestRegisterProviders(t *testing.T) {
	cfg := &config.ProvidersConfig{
		OpenAI: config.OpenAIConfig{APIKeys: config.TierKeys{Paid: "sk-test"}},
		Ollama: config.OllamaConfig{Host: "localhost:11434"},
	}
	registry := NewRegistry(cfg, zerolog.Nop())

	if !registry.IsProviderEnabled(llm.ProviderOpenAI) || !registry.IsProviderEnabled(llm.ProviderOllama) {
		t.Errorf("Expected openai and ollama, got %v", registry.Providers())
	}
	if registry.IsProviderEnabled(llm.ProviderAnthropic) {
		t.Error("Anthropic has no keys and should not be registered")
	}

	ctx := context.Background()
	if _, err := registry.Client(ctx, llm.ClientKey{Provider: llm.ProviderOpenAI, Tier: llm.TierPaid}); err != nil {
		t.Errorf("Expected paid openai client, got %v", err)
	}
	if _, err := registry.Client(ctx, llm.ClientKey{Provider: llm.ProviderOpenAI, Tier: llm.TierFree}); err == nil {
		t.Error("Expected missing free-tier credentials to fail")
	}
}
