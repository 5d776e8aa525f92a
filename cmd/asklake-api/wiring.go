package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asklake/asklake/internal/config"
	"github.com/asklake/asklake/internal/engine"
	athenaengine "github.com/asklake/asklake/internal/engine/athena"
	duckdbengine "github.com/asklake/asklake/internal/engine/duckdb"
	"github.com/asklake/asklake/internal/generator"
	"github.com/asklake/asklake/internal/generator/bedrock"
	"github.com/asklake/asklake/internal/generator/openai"
	"github.com/asklake/asklake/internal/nl2sql"
	"github.com/asklake/asklake/internal/observability"
	"github.com/asklake/asklake/internal/storage"
)

func newInvoker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*generator.Invoker, error) {
	var (
		client generator.Client
		err    error
	)
	switch cfg.Generator.Provider {
	case config.GeneratorOpenAI:
		client, err = openai.New(openai.Config{
			BaseURL:     cfg.Generator.BaseURL,
			APIKey:      cfg.Generator.APIKey,
			Model:       cfg.Generator.ModelID,
			Temperature: cfg.Generator.Temperature,
			Timeout:     cfg.Generator.Timeout,
		})
	default:
		client, err = bedrock.New(ctx, bedrock.Config{
			ModelID:     cfg.Generator.ModelID,
			Region:      cfg.Generator.Region,
			Temperature: cfg.Generator.Temperature,
			Timeout:     cfg.Generator.Timeout,
		})
	}
	if err != nil {
		return nil, err
	}
	return generator.NewInvoker(client, generator.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	}, observability.WithComponent(logger, "generator"))
}

func newNarration(cfg config.Config, invoker *generator.Invoker) (*nl2sql.Translator, *nl2sql.Summarizer, error) {
	schema, err := nl2sql.LoadSchema(cfg.Generator.SchemaFile)
	if err != nil {
		return nil, nil, err
	}
	translator, err := nl2sql.NewTranslator(invoker, schema, cfg.Guardrail.RowLimit)
	if err != nil {
		return nil, nil, err
	}
	translator.MaxTokens = cfg.Generator.SQLMaxTokens
	if cfg.Engine.Provider == config.EngineDuckDB {
		translator.Dialect = "DuckDB"
	}

	summarizer, err := nl2sql.NewSummarizer(invoker)
	if err != nil {
		return nil, nil, err
	}
	summarizer.MaxTokens = cfg.Generator.SummaryMaxTokens
	return translator, summarizer, nil
}

func newRunner(ctx context.Context, cfg config.Config, store storage.ObjectStore, logger *slog.Logger) (*engine.Runner, error) {
	var queryEngine engine.Engine
	switch cfg.Engine.Provider {
	case config.EngineDuckDB:
		tables, err := duckdbengine.ParseTables(cfg.Engine.DuckDBTables)
		if err != nil {
			return nil, fmt.Errorf("parse duckdb tables: %w", err)
		}
		local, err := duckdbengine.New(store, tables, observability.WithComponent(logger, "duckdb"))
		if err != nil {
			return nil, err
		}
		queryEngine = local
	default:
		remote, err := athenaengine.New(ctx, cfg.Engine.Region)
		if err != nil {
			return nil, err
		}
		queryEngine = remote
	}

	runner, err := engine.NewRunner(queryEngine, cfg.Guardrail.RowLimit, observability.WithComponent(logger, "engine"))
	if err != nil {
		return nil, err
	}
	runner.PollInterval = cfg.Engine.PollInterval
	runner.PageSize = cfg.Engine.PageSize
	return runner, nil
}

func targetOf(cfg config.Config) engine.Target {
	return engine.Target{
		Database:       cfg.Engine.Database,
		OutputLocation: cfg.Engine.OutputLocation,
		WorkGroup:      cfg.Engine.WorkGroup,
	}
}
