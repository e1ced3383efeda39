package providers

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/llmcore/config"
	"github.com/aschepis/backscratcher/llmcore/llm"
	llmanthropic "github.com/aschepis/backscratcher/llmcore/llm/anthropic"
	llmgemini "github.com/aschepis/backscratcher/llmcore/llm/gemini"
	"github.com/aschepis/backscratcher/llmcore/llm/mock"
	llmollama "github.com/aschepis/backscratcher/llmcore/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/llmcore/llm/openai"
	"github.com/rs/zerolog"
)

// NewRegistry builds a client registry with every enabled provider registered
// and the logging middleware installed.
func NewRegistry(cfg *config.ProvidersConfig, logger zerolog.Logger) *llm.ClientRegistry {
	registry := llm.NewClientRegistry(cfg, NewLoggingMiddleware(logger))
	RegisterProviders(registry, cfg, logger)
	return registry
}

// RegisterProviders registers a factory for each provider cfg enables.
func RegisterProviders(registry *llm.ClientRegistry, cfg *config.ProvidersConfig, logger zerolog.Logger) {
	if cfg.IsEnabled(llm.ProviderOpenAI) {
		registry.Register(llm.ProviderOpenAI, llm.ProviderSpec{
			RequiresAPIKey: true,
			Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
				return llmopenai.NewOpenAIClient(apiKey, cfg.OpenAI.BaseURL, "", cfg.OpenAI.Organization)
			},
		})
	}

	if cfg.IsEnabled(llm.ProviderAnthropic) {
		registry.Register(llm.ProviderAnthropic, llm.ProviderSpec{
			RequiresAPIKey: true,
			Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
				var opts []option.RequestOption
				if cfg.Anthropic.BaseURL != "" {
					opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
				}
				return llmanthropic.NewAnthropicClient(apiKey, logger, opts...)
			},
		})
	}

	if cfg.IsEnabled(llm.ProviderGemini) {
		registry.Register(llm.ProviderGemini, llm.ProviderSpec{
			RequiresAPIKey: true,
			Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
				return llmgemini.NewGeminiClient(ctx, apiKey, "", logger)
			},
		})
	}

	if cfg.IsEnabled(llm.ProviderOllama) {
		registry.Register(llm.ProviderOllama, llm.ProviderSpec{
			Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
				return llmollama.NewOllamaClient(cfg.Ollama.Host, "")
			},
		})
	}

	if cfg.IsEnabled(llm.ProviderMock) {
		registry.Register(llm.ProviderMock, llm.ProviderSpec{
			Factory: func(ctx context.Context, key llm.ClientKey, apiKey string) (llm.Client, error) {
				return mock.NewClient(), nil
			},
		})
	}

	logger.Info().Strs("providers", registry.Providers()).Msg("LLM providers registered")
}
