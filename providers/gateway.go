// Package providers prepares provider-neutral conversations and sends them to
// the client registered for a technology's protocol and pricing tier.
package providers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/rs/zerolog"
)

// Identity names the agent a conversation is held with.
type Identity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Prepared is a conversation ready to send, with token estimates for quota checks.
type Prepared struct {
	Messages              []llm.Message
	System                string
	EstimatedInputTokens  int64
	EstimatedOutputTokens int64
}

// Conversation returns the messages with the system prompt as a leading
// system message. Cache keys are computed from this form.
func (p *Prepared) Conversation() []llm.Message {
	if p.System == "" {
		return p.Messages
	}
	out := make([]llm.Message, 0, len(p.Messages)+1)
	out = append(out, llm.NewTextMessage(llm.RoleSystem, p.System))
	return append(out, p.Messages...)
}

// Gateway is the single path from the orchestrator to provider clients.
type Gateway struct {
	registry        *llm.ClientRegistry
	logger          zerolog.Logger
	outboundBlocked atomic.Bool
}

// NewGateway creates a gateway over registry.
func NewGateway(registry *llm.ClientRegistry, logger zerolog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		logger:   logger.With().Str("component", "providerGateway").Logger(),
	}
}

// SetOutboundDisabled toggles the global switch that turns every Send into a no-op.
func (g *Gateway) SetOutboundDisabled(disabled bool) {
	g.outboundBlocked.Store(disabled)
}

// OutboundDisabled reports whether provider calls are switched off.
func (g *Gateway) OutboundDisabled() bool {
	return g.outboundBlocked.Load()
}

// Prepare builds the system prompt and estimates token usage. Unless
// anonymize is set, the agent identity is introduced ahead of systemPrompt.
func (g *Gateway) Prepare(tech *technology.Technology, identity Identity, systemPrompt string, msgs []llm.Message, anonymize bool) *Prepared {
	var parts []string
	if !anonymize {
		if line := identityLine(identity); line != "" {
			parts = append(parts, line)
		}
	}
	if s := strings.TrimSpace(systemPrompt); s != "" {
		parts = append(parts, s)
	}

	p := &Prepared{
		Messages: append([]llm.Message(nil), msgs...),
		System:   strings.Join(parts, "\n\n"),
	}
	p.EstimatedInputTokens = llm.EstimateInputTokens(p.Conversation())
	if tech.MaxOutputTokens > 0 {
		p.EstimatedOutputTokens = tech.MaxOutputTokens
	} else {
		p.EstimatedOutputTokens = p.EstimatedInputTokens
	}
	return p
}

func identityLine(id Identity) string {
	switch {
	case id.Name != "" && id.Role != "":
		return fmt.Sprintf("You are %s, %s.", id.Name, id.Role)
	case id.Name != "":
		return fmt.Sprintf("You are %s.", id.Name)
	default:
		return ""
	}
}

// Send delivers a prepared conversation. It returns a nil response and nil
// error when outbound calls are disabled. Token counts the provider did not
// report are filled in with estimates.
func (g *Gateway) Send(ctx context.Context, tech *technology.Technology, p *Prepared, jsonMode bool) (*llm.Response, error) {
	if g.OutboundDisabled() {
		g.logger.Debug().Str("tech_id", tech.ID).Msg("Outbound calls disabled, skipping send")
		return nil, nil
	}

	client, err := g.registry.Client(ctx, tech.ClientKey())
	if err != nil {
		return nil, err
	}

	resp, err := client.Synchronous(ctx, &llm.Request{
		Model:       tech.Model,
		Messages:    p.Messages,
		System:      p.System,
		MaxTokens:   tech.MaxOutputTokens,
		Temperature: tech.Temperature,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return nil, err
	}

	if !resp.Usage.HasUsage() {
		resp.Usage = &llm.Usage{
			InputTokens:  p.EstimatedInputTokens,
			OutputTokens: llm.EstimateOutputTokens(resp.Texts()),
		}
	}
	if resp.Model == "" {
		resp.Model = tech.Model
	}
	return resp, nil
}
