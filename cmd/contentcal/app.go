package main

import (
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"github.com/rahul/contentcal/internal/agent"
	"github.com/rahul/contentcal/internal/gateway"
	"github.com/rahul/contentcal/internal/governance"
	"github.com/rahul/contentcal/internal/metrics"
	"github.com/rahul/contentcal/internal/observability"
	"github.com/rahul/contentcal/internal/pipeline"
	"github.com/rahul/contentcal/internal/pipeline/steps"
	"github.com/rahul/contentcal/internal/service"
	"github.com/rahul/contentcal/internal/store"
	"github.com/rahul/contentcal/internal/tools"
	"github.com/rahul/contentcal/pkg/config"
)

// app holds everything a command needs once the config is loaded.
type app struct {
	cfg      *config.Config
	store    *store.Store
	service  *service.Service
	metrics  *metrics.Metrics
	logger   *observability.Logger
	telegram *gateway.TelegramGateway
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// openStore is enough for the record-management commands.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// buildApp wires the model, the twelve steps, storage and notifiers into a
// service. withNotifiers is false for one-shot CLI runs.
func buildApp(withNotifiers bool) (*app, error) {
	cfg, db, err := openStore()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: db, metrics: metrics.NewMetrics()}

	logger := observability.NewLoggerIn(cfg.App.LogDir)
	a.logger = logger
	prompts := agent.NewPromptManager(cfg.App.PromptsDir)

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		a.Close()
		return nil, fmt.Errorf("no enabled provider found in config")
	}
	llm, err := agent.NewModel(pName, pCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if rpm := cfg.Pipeline.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), 1)
	}
	generator := agent.NewGenerator(llm, pCfg.Model, prompts, limiter, logger)

	policy, err := contentPolicy(cfg.ContentPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := steps.Deps{Generator: generator, Prompts: prompts, Policy: policy}
	if cfg.Research.SearchEnabled {
		search, err := tools.NewTrendSearch(cfg.Research.MaxResults)
		if err != nil {
			log.Printf("Warning: Failed to initialize trend search: %v", err)
		} else {
			deps.Trends = search
		}
	}

	manager := pipeline.NewStepManager()
	if err := steps.RegisterAll(manager, deps); err != nil {
		a.Close()
		return nil, err
	}

	var website store.WebsiteSummarizer
	if cfg.Research.WebsiteEnabled {
		website = tools.NewWebsiteReader()
	}

	opts := service.Options{
		Steps:    manager,
		Provider: store.NewProvider(db, website),
		Pipeline: pipelineConfig(cfg.Pipeline),
		Store:    db,
		Metrics:  a.metrics,
		Logger:   logger,
	}

	// The telegram bot answers /status queries, so it needs the service
	// it reports on. The notifier list is therefore filled after New.
	var notifiers gateway.Multi
	if withNotifiers {
		opts.Notifier = &notifiers
	}
	a.service = service.New(opts)

	if withNotifiers {
		if tg, ok := cfg.GetTelegramConfig(); ok {
			bot, err := gateway.NewTelegramGateway(tg.Token, tg.ChatID, a.service)
			if err != nil {
				log.Printf("Warning: Telegram gateway disabled: %v", err)
			} else {
				a.telegram = bot
				notifiers = append(notifiers, bot)
			}
		}
		if dc, ok := cfg.GetDiscordConfig(); ok {
			d, err := gateway.NewDiscordGateway(dc.Token, dc.ChannelID)
			if err != nil {
				log.Printf("Warning: Discord gateway disabled: %v", err)
			} else {
				notifiers = append(notifiers, d)
			}
		}
	}
	return a, nil
}

func contentPolicy(c config.ContentPolicyConfig) (*governance.ContentPolicy, error) {
	policy := governance.NewContentPolicy()
	for _, term := range c.DeniedTerms {
		policy.DenyTerm(term)
	}
	for _, pattern := range c.DeniedPatterns {
		if err := policy.DenyPattern(pattern); err != nil {
			return nil, fmt.Errorf("invalid content_policy pattern %q: %w", pattern, err)
		}
	}
	return policy, nil
}

func pipelineConfig(c config.PipelineConfig) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Retry.MaxRetries = c.MaxRetries
	pc.Retry.AttemptTimeout = c.StepTimeout
	if c.BackoffInitial > 0 {
		pc.Retry.InitialInterval = c.BackoffInitial
	}
	if c.BackoffMax > 0 {
		pc.Retry.MaxInterval = c.BackoffMax
	}
	pc.AcceptableQuality = c.AcceptableQuality
	return pc
}
