package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asklake/asklake/internal/api"
	"github.com/asklake/asklake/internal/archive"
	"github.com/asklake/asklake/internal/ask"
	"github.com/asklake/asklake/internal/config"
	"github.com/asklake/asklake/internal/guardrail"
	historypostgres "github.com/asklake/asklake/internal/history/postgres"
	"github.com/asklake/asklake/internal/observability"
	s3store "github.com/asklake/asklake/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("asklake-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	var objectStore *s3store.Store
	if cfg.Engine.Provider == config.EngineDuckDB || cfg.ObjectStore.ArchiveEnabled {
		objectStore, err = s3store.New(ctx, s3store.FromConfig(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	invoker, err := newInvoker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize text generator", slog.Any("error", err))
		os.Exit(1)
	}
	translator, summarizer, err := newNarration(cfg, invoker)
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}
	runner, err := newRunner(ctx, cfg, objectStore, logger)
	if err != nil {
		logger.Error("failed to initialize query engine", slog.Any("error", err))
		os.Exit(1)
	}
	validator, err := guardrail.New(guardrail.Policy{
		AllowedSchemas: cfg.Guardrail.AllowedSchemas,
		RowLimit:       cfg.Guardrail.RowLimit,
	})
	if err != nil {
		logger.Error("failed to initialize sql guardrail", slog.Any("error", err))
		os.Exit(1)
	}

	deps := ask.Dependencies{
		Translator: translator,
		Validator:  validator,
		Executor:   runner,
		Summarizer: summarizer,
	}
	checks := []api.ReadinessCheck{api.CheckGuardrailConfig(cfg)}

	var historyRepo *historypostgres.Repository
	if cfg.History.DSN != "" {
		var historyDB *sql.DB
		historyDB, err = historypostgres.Open(ctx, cfg.History)
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = historyDB.Close() }()
		historyRepo = historypostgres.NewRepository(historyDB)
		deps.History = historyRepo
		checks = append(checks, historyRepo.HealthCheck)
	}
	if objectStore != nil {
		checks = append(checks, objectStore.Ping)
	}
	if cfg.ObjectStore.ArchiveEnabled {
		archiver, err := archive.New(objectStore)
		if err != nil {
			logger.Error("failed to initialize answer archive", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archive = archiver
	}

	service, err := ask.NewService(deps, targetOf(cfg), observability.WithComponent(logger, "ask"))
	if err != nil {
		logger.Error("failed to initialize ask service", slog.Any("error", err))
		os.Exit(1)
	}

	apiDeps := api.Dependencies{
		Logger:            logger,
		Asker:             service,
		Readiness:         api.CombineReadinessChecks(checks...),
		DependencyTimeout: 2 * time.Second,
	}
	if historyRepo != nil {
		apiDeps.History = historyRepo
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, apiDeps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("generator", cfg.Generator.Provider),
			slog.String("engine", cfg.Engine.Provider),
			slog.Bool("history", historyRepo != nil),
			slog.Bool("archive", cfg.ObjectStore.ArchiveEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
