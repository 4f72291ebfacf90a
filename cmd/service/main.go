// cmd/service/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"repo-leaderboard/internal/config"
	"repo-leaderboard/internal/database"
	"repo-leaderboard/internal/enrich"
	"repo-leaderboard/internal/github"
	"repo-leaderboard/internal/scheduler"
	"repo-leaderboard/internal/syncer"
)

var (
	logLevel = new(slog.LevelVar)
	logger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
)

func main() {
	slog.SetDefault(logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Application error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	store     *database.Store
	scheduler *scheduler.Scheduler
}

// loadConfig reads configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully",
		"summary_pass", cfg.Passes.Summary.Enabled,
		"aiml_pass", cfg.Passes.AIML.Enabled,
		"build_plan_pass", cfg.Passes.BuildPlan.Enabled,
		"insights", cfg.Passes.Insights.Enabled,
		"provider", cfg.Passes.Summary.Provider)
	return cfg, nil
}

// newApp connects to the database, optionally applies migrations and wires
// every component. The caller must close the returned app.
func newApp(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := database.Migrate(cfg.DBURL, logger); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")
	store := database.NewStore(dbpool, cfg.CacheSize, cfg.CacheTTL)

	ghOpts := []github.Option{github.WithTimeout(cfg.GithubTimeout)}
	if cfg.GithubAPIURL != "" {
		ghOpts = append(ghOpts, github.WithEnterpriseURL(cfg.GithubAPIURL))
	}
	ghClient, err := github.NewClient(cfg.GithubToken, logger, ghOpts...)
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	appSyncer, err := syncer.NewSyncer(store, ghClient, logger, cfg.AIMLRepos, cfg.SWERepos, syncer.OptionsFromConfig(cfg))
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to create syncer: %w", err)
	}

	llms, err := enrich.CompletersFromConfig(cfg)
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to create llm clients: %w", err)
	}
	enricher := enrich.NewEnricher(store, llms, logger, enrich.OptionsFromConfig(cfg))

	return &app{
		cfg:       cfg,
		pool:      dbpool,
		store:     store,
		scheduler: scheduler.New(appSyncer, enricher, store, logger, scheduler.OptionsFromConfig(cfg)),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
