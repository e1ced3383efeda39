package anthropic

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/rs/zerolog"
)

// defaultMaxTokens is used when the request does not set MaxTokens; the
// Messages API requires it.
const defaultMaxTokens = 4096

// jsonOnlyInstruction is appended to the system prompt in JSON mode, since
// the Messages API has no response format switch.
const jsonOnlyInstruction = "Respond only with valid JSON. Do not include any prose before or after the JSON."

// AnthropicClient implements the llm.Client interface for Anthropic's API.
type AnthropicClient struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicClient creates a new AnthropicClient with the given API key.
func NewAnthropicClient(apiKey string, logger zerolog.Logger, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicClient{
		client: &client,
		logger: logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *AnthropicClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	message, err := c.client.Messages.New(ctx, BuildParams(req))
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	resp := FromMessage(message)
	c.logger.Debug().
		Str("model", resp.Model).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Str("stop_reason", resp.StopReason).
		Msg("Anthropic response received")
	return resp, nil
}

// BuildParams converts an llm.Request into Messages API parameters.
func BuildParams(req *llm.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  ToMessageParams(req.Messages),
	}

	system := req.System
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += jsonOnlyInstruction
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

// convertAnthropicError converts SDK errors to llm.Error types.
func convertAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("Anthropic API error", err)
	}

	var retryAfter = llm.DefaultRetryAfter
	if apiErr.Response != nil {
		if d := llm.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After")); d > 0 {
			retryAfter = d
		}
	}
	return llm.FromStatusCode("Anthropic", apiErr.StatusCode, apiErr.Error(), retryAfter, err)
}

var _ llm.Client = (*AnthropicClient)(nil)
