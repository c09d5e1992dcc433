// Package main provides the entry point for the paper digest service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/paper-digest-service/internal/config"
	"github.com/helixir/paper-digest-service/internal/database"
	"github.com/helixir/paper-digest-service/internal/events"
	"github.com/helixir/paper-digest-service/internal/llm"
	"github.com/helixir/paper-digest-service/internal/observability"
	"github.com/helixir/paper-digest-service/internal/papersources"
	"github.com/helixir/paper-digest-service/internal/papersources/arxiv"
	"github.com/helixir/paper-digest-service/internal/papersources/huggingface"
	"github.com/helixir/paper-digest-service/internal/render"
	"github.com/helixir/paper-digest-service/internal/repository"
	"github.com/helixir/paper-digest-service/internal/scheduler"
	httpserver "github.com/helixir/paper-digest-service/internal/server/http"
	"github.com/helixir/paper-digest-service/internal/taskflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-digest-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Prometheus metrics.
	metrics := observability.NewMetrics("paperdigest")

	// Create repositories.
	paperRepo := repository.NewPgPaperRepository(db)
	reportRepo := repository.NewPgReportRepository(db)
	runRepo := repository.NewPgTaskRunRepository(db)
	lockRepo := repository.NewPgLockRepository(db)
	itemRepo := repository.NewPgWorkItemRepository(db)

	// Register enabled paper sources.
	sources := papersources.NewRegistry()
	if cfg.Sources.HuggingFace.Enabled {
		sources.Register(huggingface.NewClient(huggingface.Config{
			Enabled:    true,
			BaseURL:    cfg.Sources.HuggingFace.BaseURL,
			Timeout:    cfg.Sources.HuggingFace.Timeout,
			RateLimit:  cfg.Sources.HuggingFace.RateLimit,
			MaxResults: cfg.Sources.HuggingFace.MaxResults,
		}))
	}
	if cfg.Sources.ArXiv.Enabled {
		sources.Register(arxiv.NewClient(arxiv.Config{
			Enabled:    true,
			BaseURL:    cfg.Sources.ArXiv.BaseURL,
			Timeout:    cfg.Sources.ArXiv.Timeout,
			RateLimit:  cfg.Sources.ArXiv.RateLimit,
			MaxResults: cfg.Sources.ArXiv.MaxResults,
		}))
	}

	// Create the LLM analyzer.
	analyzer, err := llm.NewAnalyzer(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create LLM analyzer: %w", err)
	}
	logger.Info().
		Str("provider", analyzer.Provider()).
		Str("model", analyzer.Model()).
		Msg("LLM analyzer ready")

	// Markdown report renderer.
	renderer := render.NewRenderer(cfg.Reports.Dir)

	// Lifecycle event publisher.
	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		kafkaPub := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger, metrics)
		defer func() {
			if closeErr := kafkaPub.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()
		publisher = kafkaPub
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher ready")
	} else {
		publisher = events.NewNopPublisher()
	}

	// Task orchestration.
	hostname, err := os.Hostname()
	if err != nil {
		hostname = fmt.Sprintf("worker-%d", os.Getpid())
	}

	orchestrator := taskflow.NewOrchestrator(taskflow.OrchestratorConfig{
		Owner:       hostname,
		Concurrency: cfg.Orchestrator.Concurrency,
		LockTTL:     cfg.Orchestrator.LockTTL,
	}, taskflow.Deps{
		Sources:   sources,
		Analyzer:  analyzer,
		Renderer:  renderer,
		Publisher: publisher,
		State:     taskflow.NewStateMachine(db, paperRepo),
		Papers:    paperRepo,
		Reports:   reportRepo,
		Runs:      runRepo,
		Locks:     lockRepo,
		Items:     itemRepo,
		Policy:    taskflow.NewPolicy(cfg.Orchestrator.RetryBaseDelay, cfg.Orchestrator.RetryMaxDelay),
		Logger:    logger,
		Metrics:   metrics,
	})

	// In-process cron scheduler.
	retention := time.Duration(cfg.Orchestrator.RetentionDays) * 24 * time.Hour
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(cfg.Scheduler, retention, orchestrator, logger)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start()
		logger.Info().Int("jobs", len(cfg.Scheduler.Jobs)).Msg("scheduler started")
	}

	// HTTP REST API server.
	var apiKeys []string
	if cfg.Auth.Enabled {
		apiKeys = cfg.Auth.APIKeys
	}
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		APIKeys:         apiKeys,
	}
	httpSrv := httpserver.NewServer(httpCfg, orchestrator, paperRepo, reportRepo, runRepo, db, logger)

	// Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		logger.Info().Str("address", httpCfg.Address).Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-digest-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-digest-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the scheduler first so no new runs start during drain.
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("scheduler shutdown error")
		}
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("paper-digest-service shutdown complete")
	return nil
}
