package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/dotcommander/weaver/internal/agent"
	"github.com/dotcommander/weaver/internal/config"
	"github.com/dotcommander/weaver/internal/core"
	"github.com/dotcommander/weaver/internal/prompts"
	"github.com/dotcommander/weaver/internal/storage"
)

// env is what every command needs: config, logger and an open store.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Store
}

func setup(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Log, cmd.Bool("verbose"))
	slog.SetDefault(logger)

	store, err := storage.Open(ctx, storage.Options{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.Redis.Addr,
		RedisPassword: cfg.Storage.Redis.Password,
		RedisDB:       cfg.Storage.Redis.DB,
		RedisPrefix:   cfg.Storage.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	logger.Debug("environment ready",
		"provider", cfg.AI.Provider,
		"storage", cfg.Storage.Backend,
		"path", cfg.Storage.Path)

	return &env{cfg: cfg, logger: logger, store: store}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", "error", err)
	}
}

func newLogger(lc config.LogConfig, verbose bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(lc.Level))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// generator builds the provider client wrapped in the retry policy.
func (e *env) generator() agent.Generator {
	ai := e.cfg.AI
	var base agent.Generator
	if ai.Provider == "mock" {
		base = agent.NewMockClient(3)
	} else {
		opts := []agent.Option{
			agent.WithAPIConfig(ai.Provider, ai.BaseURL, ai.Model),
			agent.WithRateLimit(e.cfg.Limits.RateLimit.RequestsPerMinute, e.cfg.Limits.RateLimit.BurstSize),
			agent.WithLogger(e.logger),
		}
		if t := ai.RequestTimeout(); t > 0 {
			opts = append(opts, agent.WithTimeout(t))
		}
		base = agent.NewClient(ai.APIKey, opts...)
	}

	return agent.NewRetryClient(base, agent.RetryPolicy{
		MaxAttempts: e.cfg.Limits.MaxAttempts,
		BaseDelay:   e.cfg.Limits.BaseDelay,
		MaxJitter:   e.cfg.Limits.MaxJitter,
	}, agent.WithRetryLogger(e.logger))
}

func (e *env) orchestrator(observer core.Observer) (*core.Orchestrator, error) {
	promptCfg, err := prompts.NewLoader().Load(e.cfg.Prompts)
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	g := e.cfg.Generation
	opts := []core.Option{
		core.WithLogger(e.logger),
		core.WithPrompts(promptCfg),
		core.WithSettings(core.Settings{
			BibleTemperature:   g.BibleTemperature,
			OutlineTemperature: g.OutlineTemperature,
			ChapterTemperature: g.ChapterTemperature,
			SummaryTemperature: g.SummaryTemperature,
			RetrievalTopK:      g.RetrievalTopK,
		}),
	}
	if observer != nil {
		opts = append(opts, core.WithObserver(observer))
	}
	return core.New(e.generator(), e.store, opts...), nil
}
