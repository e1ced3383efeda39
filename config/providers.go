package config

import (
	"context"
	"os"

	"github.com/aschepis/backscratcher/llmcore/llm"
	"github.com/samber/lo"
)

// TierKeys holds one API key per pricing tier.
type TierKeys struct {
	Free string `yaml:"free,omitempty"`
	Paid string `yaml:"paid,omitempty"`
}

// For returns the key for tier.
func (k TierKeys) For(tier string) string {
	if tier == llm.TierFree {
		return k.Free
	}
	return k.Paid
}

// OpenAIConfig represents configuration for the OpenAI protocol.
type OpenAIConfig struct {
	APIKeys      TierKeys `yaml:"api_keys,omitempty"`
	BaseURL      string   `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Organization string   `yaml:"organization,omitempty"` // Organization ID
}

// AnthropicConfig represents configuration for the Anthropic protocol.
type AnthropicConfig struct {
	APIKeys TierKeys `yaml:"api_keys,omitempty"`
	BaseURL string   `yaml:"base_url,omitempty"`
}

// GeminiConfig represents configuration for the Gemini protocol.
type GeminiConfig struct {
	APIKeys TierKeys `yaml:"api_keys,omitempty"`
}

// OllamaConfig represents configuration for a local Ollama server.
type OllamaConfig struct {
	Host string `yaml:"host,omitempty"` // default: "http://localhost:11434"
}

// ProvidersConfig lists provider settings. Enabled names the protocols to
// register; when empty every protocol with credentials is registered.
type ProvidersConfig struct {
	Enabled   []string        `yaml:"enabled,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Gemini    GeminiConfig    `yaml:"gemini,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
}

func (p *ProvidersConfig) applyEnv() {
	envKey(&p.OpenAI.APIKeys.Paid, "OPENAI_API_KEY")
	envKey(&p.OpenAI.APIKeys.Free, "OPENAI_FREE_API_KEY")
	envKey(&p.OpenAI.BaseURL, "OPENAI_BASE_URL")
	envKey(&p.OpenAI.Organization, "OPENAI_ORG_ID")
	envKey(&p.Anthropic.APIKeys.Paid, "ANTHROPIC_API_KEY")
	envKey(&p.Anthropic.APIKeys.Free, "ANTHROPIC_FREE_API_KEY")
	envKey(&p.Gemini.APIKeys.Paid, "GEMINI_API_KEY")
	envKey(&p.Gemini.APIKeys.Free, "GEMINI_FREE_API_KEY")
	envKey(&p.Ollama.Host, "OLLAMA_HOST")
}

func envKey(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// APIKey implements llm.CredentialSource. Unknown providers and missing tiers
// return an empty key, which the registry reports as missing credentials.
func (p *ProvidersConfig) APIKey(_ context.Context, provider, tier string) (string, error) {
	switch provider {
	case llm.ProviderOpenAI:
		return p.OpenAI.APIKeys.For(tier), nil
	case llm.ProviderAnthropic:
		return p.Anthropic.APIKeys.For(tier), nil
	case llm.ProviderGemini:
		return p.Gemini.APIKeys.For(tier), nil
	default:
		return "", nil
	}
}

// IsEnabled reports whether provider should be registered.
func (p *ProvidersConfig) IsEnabled(provider string) bool {
	if len(p.Enabled) > 0 {
		return lo.Contains(p.Enabled, provider)
	}
	switch provider {
	case llm.ProviderOpenAI:
		return p.OpenAI.APIKeys != TierKeys{}
	case llm.ProviderAnthropic:
		return p.Anthropic.APIKeys != TierKeys{}
	case llm.ProviderGemini:
		return p.Gemini.APIKeys != TierKeys{}
	case llm.ProviderOllama:
		return p.Ollama.Host != ""
	default:
		return false
	}
}

var _ llm.CredentialSource = (*ProvidersConfig)(nil)
