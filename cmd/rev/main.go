package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bkyoung/review-engine/internal/adapter/cli"
	"github.com/bkyoung/review-engine/internal/adapter/git"
	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/adapter/llm/anthropic"
	"github.com/bkyoung/review-engine/internal/adapter/llm/gemini"
	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
	"github.com/bkyoung/review-engine/internal/adapter/llm/ollama"
	"github.com/bkyoung/review-engine/internal/adapter/llm/openai"
	"github.com/bkyoung/review-engine/internal/adapter/llm/static"
	"github.com/bkyoung/review-engine/internal/adapter/scm"
	"github.com/bkyoung/review-engine/internal/adapter/store/sqlite"
	"github.com/bkyoung/review-engine/internal/config"
	"github.com/bkyoung/review-engine/internal/domain"
	"github.com/bkyoung/review-engine/internal/redaction"
	"github.com/bkyoung/review-engine/internal/usecase/review"
	"github.com/bkyoung/review-engine/internal/version"
)

func main() {
	if err := run(); err != nil {
		// Redact API keys from URLs in error messages before logging
		log.Println(llmhttp.RedactURLSecrets(err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "rev",
		EnvPrefix:   "REV",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := buildLogger(cfg.Observability.Logging)
	metrics := buildMetrics(cfg.Observability.Metrics)

	clients := buildClients(cfg, logger, metrics)
	if len(clients) == 1 {
		logger.LogWarning(ctx, "no providers enabled, only the static client is available", nil)
	}

	router, err := review.NewRouter(cfg.Review.DefaultModel, cfg.Review.AllowedModels, clients)
	if err != nil {
		return fmt.Errorf("router setup failed: %w", err)
	}

	var outcomeCache review.OutcomeCache
	var prCache review.PRCache
	var quotaStore review.QuotaStore
	var recorder review.Recorder

	if cfg.Store.Enabled {
		store, err := sqlite.NewStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("store setup failed: %w", err)
		}
		defer store.Close()
		outcomeCache, prCache, quotaStore, recorder = store, store, store, store
	} else {
		memory := review.NewMemoryCache()
		outcomeCache, prCache = memory, memory
		quotaStore = review.NewMemoryQuotaStore()
	}
	if !cfg.Cache.Enabled {
		outcomeCache, prCache = nil, nil
	}

	dailyLimit := 0
	if cfg.Quota.Enabled {
		dailyLimit = cfg.Quota.DailyLimit
	}
	quota := review.NewQuotaGuard(quotaStore, dailyLimit)

	var redactor review.Redactor
	if cfg.Redaction.Enabled {
		redactor = redaction.NewEngine()
	}

	engine := review.NewEngine(review.EngineConfig{
		MaxAttempts: cfg.Review.MaxAttempts,
		BaseDelay:   parseDurationOr(cfg.Review.BaseDelay, 2*time.Second),
	}, logger, metrics)

	orchestrator := review.NewOrchestrator(review.OrchestratorConfig{
		Router:          router,
		Engine:          engine,
		OutcomeCache:    outcomeCache,
		PRCache:         prCache,
		Quota:           quota,
		Redactor:        redactor,
		Recorder:        recorder,
		Logger:          logger,
		Metrics:         metrics,
		MaxOutputTokens: cfg.Review.MaxOutputTokens,
		Temperature:     cfg.Review.Temperature,
		MaxFilesPerPR:   cfg.Review.MaxFilesPerPR,
		MinPatchLines:   cfg.Review.MinPatchLines,
	})

	scmClient := scm.NewClient(cfg.SCM.Token)
	if cfg.SCM.BaseURL != "" {
		scmClient.SetBaseURL(cfg.SCM.BaseURL)
	}

	repoDir := cfg.Git.RepositoryDir
	if repoDir == "" {
		repoDir = "."
	}

	root := cli.NewRootCommand(cli.Dependencies{
		Reviewer: orchestrator,
		SCM:      scmClient,
		Branch:   git.NewEngine(repoDir),
		Quota:    quota,
		Models:   router.Descriptors(),
		UserID:   currentUser(),
		Version:  version.Version,
	})

	return root.ExecuteContext(ctx)
}

// buildClients instantiates one client per enabled provider family. The
// static client is always present so the pipeline works offline.
func buildClients(cfg config.Config, logger llmhttp.Logger, metrics llmhttp.Metrics) map[string]llm.Client {
	clients := map[string]llm.Client{
		domain.FamilyStatic: static.NewClient(),
	}

	if p, ok := cfg.Providers[domain.FamilyAnthropic]; ok && p.Enabled && p.APIKey != "" {
		client := anthropic.NewHTTPClient(p.APIKey, p, cfg.HTTP)
		client.SetLogger(logger)
		client.SetMetrics(metrics)
		clients[domain.FamilyAnthropic] = client
	}
	if p, ok := cfg.Providers[domain.FamilyGemini]; ok && p.Enabled && p.APIKey != "" {
		client := gemini.NewHTTPClient(p.APIKey, p, cfg.HTTP)
		client.SetLogger(logger)
		client.SetMetrics(metrics)
		clients[domain.FamilyGemini] = client
	}
	if p, ok := cfg.Providers[domain.FamilyOpenAI]; ok && p.Enabled && p.APIKey != "" {
		client := openai.NewHTTPClient(p.APIKey, p, cfg.HTTP)
		client.SetLogger(logger)
		client.SetMetrics(metrics)
		clients[domain.FamilyOpenAI] = client
	}
	if p, ok := cfg.Providers[domain.FamilyOllama]; ok && p.Enabled {
		client := ollama.NewHTTPClient(p, cfg.HTTP)
		client.SetLogger(logger)
		client.SetMetrics(metrics)
		clients[domain.FamilyOllama] = client
	}

	return clients
}

func buildLogger(cfg config.LoggingConfig) llmhttp.Logger {
	if !cfg.Enabled {
		return llmhttp.NopLogger{}
	}

	level := llmhttp.LogLevelInfo
	switch cfg.Level {
	case "debug":
		level = llmhttp.LogLevelDebug
	case "error":
		level = llmhttp.LogLevelError
	}

	format := llmhttp.LogFormatHuman
	if cfg.Format == "json" {
		format = llmhttp.LogFormatJSON
	}

	return llmhttp.NewDefaultLogger(level, format, cfg.RedactAPIKeys)
}

func buildMetrics(cfg config.MetricsConfig) llmhttp.Metrics {
	if !cfg.Enabled {
		return llmhttp.NopMetrics{}
	}
	return llmhttp.NewDefaultMetrics()
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rev"))
	}
	return paths
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func currentUser() string {
	if user := os.Getenv("REV_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "default"
}
