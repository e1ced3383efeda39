// Package config loads the llmcore service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/llmcore/pricing"
	"github.com/aschepis/backscratcher/llmcore/store"
	"github.com/aschepis/backscratcher/llmcore/store/redisstore"
	"github.com/aschepis/backscratcher/llmcore/technology"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Listen          string        `yaml:"listen,omitempty"`           // e.g. ":8080"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"` // Graceful shutdown limit
}

// OrchestratorConfig tunes the request retry loop.
type OrchestratorConfig struct {
	MaxRetries              int           `yaml:"max_retries,omitempty"`               // Shared budget for rate-limit waits and JSON retries
	ServiceUnavailableDelay time.Duration `yaml:"service_unavailable_delay,omitempty"` // Fixed sleep after a 503
	DisableOutbound         bool          `yaml:"disable_outbound,omitempty"`          // Skip every provider call
	Resource                string        `yaml:"resource,omitempty"`                  // Quota and pricing resource
}

// JanitorConfig schedules rate-limit event pruning.
type JanitorConfig struct {
	Disabled  bool          `yaml:"disabled,omitempty"`
	Schedule  string        `yaml:"schedule,omitempty"`  // cron spec or "@every 1h"
	Retention time.Duration `yaml:"retention,omitempty"` // Events older than this are pruned
}

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig            `yaml:"server,omitempty"`
	Database     store.Config            `yaml:"database,omitempty"`
	Redis        redisstore.Config       `yaml:"redis,omitempty"` // Rate-limit log in Redis when Address is set
	Providers    ProvidersConfig         `yaml:"providers,omitempty"`
	Technologies []technology.Technology `yaml:"technologies,omitempty"`
	PricingFile  string                  `yaml:"pricing_file,omitempty"`
	Pricing      pricing.Table           `yaml:"pricing,omitempty"`
	Orchestrator OrchestratorConfig      `yaml:"orchestrator,omitempty"`
	Janitor      JanitorConfig           `yaml:"janitor,omitempty"`
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: store.Config{
			Driver: "sqlite3",
			DSN:    "llmcore.db",
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com/v1",
			},
			Ollama: OllamaConfig{
				Host: "http://localhost:11434",
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:              5,
			ServiceUnavailableDelay: 60 * time.Second,
			Resource:                pricing.ResourceChat,
		},
		Janitor: JanitorConfig{
			Schedule:  "@every 1h",
			Retention: 24 * time.Hour,
		},
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via LLMCORE_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMCORE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmcore/config.yaml"
	}
	return filepath.Join(homeDir, ".llmcore", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads path (if it exists) onto the defaults, then applies environment
// overrides and loads the pricing file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
		if cfg.PricingFile != "" && !filepath.IsAbs(cfg.PricingFile) {
			cfg.PricingFile = filepath.Join(filepath.Dir(expandedPath), cfg.PricingFile)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.PricingFile != "" {
		table, err := pricing.LoadFile(cfg.PricingFile)
		if err != nil {
			return nil, err
		}
		// Inline entries win over the file.
		cfg.Pricing = lo.Assign(table, cfg.Pricing)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Providers.applyEnv()

	if v := os.Getenv("LLMCORE_DISABLE_OUTBOUND"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LLMCORE_DISABLE_OUTBOUND %q: %w", v, err)
		}
		c.Orchestrator.DisableOutbound = disabled
	}
	if v := os.Getenv("LLMCORE_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("LLMCORE_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("LLMCORE_REDIS_ADDR"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("LLMCORE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	return nil
}

// Validate checks settings that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxRetries <= 0 {
		return fmt.Errorf("orchestrator.max_retries must be positive")
	}
	if c.Orchestrator.Resource == "" {
		return fmt.Errorf("orchestrator.resource is required")
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog builds the technology catalog.
func (c *Config) Catalog() (*technology.Catalog, error) {
	catalog, err := technology.NewCatalog(c.Technologies)
	if err != nil {
		return nil, fmt.Errorf("invalid technologies: %w", err)
	}
	return catalog, nil
}
