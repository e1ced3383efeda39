package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiClient implements the llm.Client interface for the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiClient creates a new GeminiClient using the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "geminiClient").Logger(),
	}, nil
}

// Synchronous implements llm.Client.Synchronous.
func (c *GeminiClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, ToContents(req.System, req.Messages), BuildConfig(req))
	if err != nil {
		return nil, convertGeminiError(err)
	}

	out := FromResponse(resp)
	out.Model = model
	c.logger.Debug().
		Str("model", model).
		Int64("input_tokens", out.Usage.InputTokens).
		Int64("output_tokens", out.Usage.OutputTokens).
		Msg("Gemini response received")
	return out, nil
}

// BuildConfig maps request options onto a generation config.
func BuildConfig(req *llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// convertGeminiError converts genai API errors to llm.Error types.
func convertGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.FromStatusCode("Gemini", apiErr.Code, apiErr.Message, 0, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llm.FromStatusCode("Gemini", apiErrPtr.Code, apiErrPtr.Message, 0, err)
	}
	return llm.NewProviderError("Gemini API error", err)
}

var _ llm.Client = (*GeminiClient)(nil)
