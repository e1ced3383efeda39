package main

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/llmcore/cache"
	"github.com/aschepis/backscratcher/llmcore/config"
	"github.com/aschepis/backscratcher/llmcore/janitor"
	"github.com/aschepis/backscratcher/llmcore/logger"
	"github.com/aschepis/backscratcher/llmcore/orchestrator"
	"github.com/aschepis/backscratcher/llmcore/providers"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/aschepis/backscratcher/llmcore/ratelimit"
	"github.com/aschepis/backscratcher/llmcore/store"
	"github.com/aschepis/backscratcher/llmcore/store/redisstore"
	"github.com/rs/zerolog"
)

// app holds the wired components of a running llmcored.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  *store.Store
	events ratelimit.EventLog

	cache        *cache.Cache
	ledger       *quota.Ledger
	gateway      *providers.Gateway
	orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// loadBase loads configuration, the logger and the migrated database. It is
// all the admin subcommands need.
func loadBase(ctx context.Context, opts *globalOptions) (*app, error) {
	log, err := logger.InitWithOptions(opts.logFile, opts.pretty)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	configPath := opts.configPath
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Info().Str("config", configPath).Str("driver", cfg.Database.Driver).Msg("Loaded configuration")

	s, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{cfg: cfg, logger: log, store: s, closers: []func() error{s.Close}}

	if err := s.Migrate(); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.cache = cache.New(s, log)
	a.ledger = quota.NewLedger(s, log)
	return a, nil
}

// loadApp wires the full request path on top of loadBase.
func loadApp(ctx context.Context, opts *globalOptions) (*app, error) {
	a, err := loadBase(ctx, opts)
	if err != nil {
		return nil, err
	}

	a.events = a.store
	if a.cfg.Redis.Address != "" {
		redisEvents, err := redisstore.New(ctx, a.cfg.Redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.events = redisEvents
		a.closers = append(a.closers, redisEvents.Close)
		a.logger.Info().Str("address", a.cfg.Redis.Address).Msg("Rate limit events stored in Redis")
	}

	catalog, err := a.cfg.Catalog()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build technology catalog: %w", err)
	}

	registry := providers.NewRegistry(&a.cfg.Providers, a.logger)
	a.gateway = providers.NewGateway(registry, a.logger)
	a.gateway.SetOutboundDisabled(a.cfg.Orchestrator.DisableOutbound)
	a.logger.Info().Strs("providers", registry.Providers()).Bool("outbound_disabled", a.cfg.Orchestrator.DisableOutbound).Msg("Providers registered")

	orchOpts := []orchestrator.Option{}
	if a.cfg.Orchestrator.MaxRetries > 0 {
		orchOpts = append(orchOpts, orchestrator.WithMaxRetries(a.cfg.Orchestrator.MaxRetries))
	}
	if a.cfg.Orchestrator.ServiceUnavailableDelay > 0 {
		orchOpts = append(orchOpts, orchestrator.WithServiceUnavailableDelay(a.cfg.Orchestrator.ServiceUnavailableDelay))
	}
	if a.cfg.Orchestrator.Resource != "" {
		orchOpts = append(orchOpts, orchestrator.WithResource(a.cfg.Orchestrator.Resource))
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Deps{
		Technologies: catalog,
		Gateway:      a.gateway,
		Pricing:      a.cfg.Pricing,
		Cache:        a.cache,
		Limiter:      ratelimit.NewLimiter(a.events, a.logger),
		Ledger:       a.ledger,
	}, a.logger, orchOpts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return a, nil
}

// startJanitor runs event pruning in the background unless disabled.
func (a *app) startJanitor(ctx context.Context) error {
	if a.cfg.Janitor.Disabled {
		a.logger.Info().Msg("Janitor is disabled")
		return nil
	}
	j, err := janitor.New(a.events, a.cfg.Janitor.Schedule, a.cfg.Janitor.Retention, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}
	go j.Start(ctx)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}
