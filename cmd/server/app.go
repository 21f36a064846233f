package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tickettriage/internal/ai/providers"
	"github.com/kiranshivaraju/tickettriage/internal/cache"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/internal/embedding"
	"github.com/kiranshivaraju/tickettriage/internal/kb"
	"github.com/kiranshivaraju/tickettriage/internal/logging"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/internal/triage"
)

// app holds the long-lived components shared by the serve and worker commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	store  *store.PostgresStore
	cache  *cache.RedisCache
	queue  queue.Queue
	kb     *kb.Service
	triage *triage.Service
	worker *triage.Worker
}

// loadConfig loads configuration and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Log)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"ai_provider", cfg.AI.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"queue_backend", cfg.Queue.Backend)
	return cfg, nil
}

// newApp connects to Postgres, Redis and the task queue and builds the triage
// pipeline. Migrations run before the pool opens because every connection
// registers the vector type.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	a := &app{cfg: cfg, pool: pool, store: store.NewPostgresStore(pool)}

	a.cache, err = cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := a.cache.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	a.queue, err = queue.New(cfg.Queue, a.cache.Client())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create task queue: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding, a.cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	classifier, err := providers.NewClassifier(cfg.AI)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("triage pipeline initialized", "classifier", classifier.Name(), "embedder", embedder.Name())

	a.kb = kb.NewService(a.store, embedder, a.queue, kb.Options{
		ChunkSize:      cfg.KB.ChunkSize,
		ChunkOverlap:   cfg.KB.ChunkOverlap,
		EmbedBatchSize: cfg.KB.EmbedBatchSize,
	})
	a.triage = triage.NewService(a.store, a.queue)

	orch := triage.NewOrchestrator(a.store, a.kb, classifier, triage.OrchestratorOptions{
		AutoResolveThreshold: cfg.Triage.AutoResolveThreshold,
		KBTopK:               cfg.Triage.KBTopK,
		InferenceTimeout:     cfg.AI.InferenceTimeout,
	})
	a.worker = triage.NewWorker(a.queue, orch, a.kb, a.store, triage.WorkerOptions{
		Concurrency:    cfg.Worker.Concurrency,
		MaxRetries:     cfg.Triage.MaxRetries,
		RetryBaseDelay: cfg.Triage.RetryBaseDelay,
		RetryMaxDelay:  cfg.Triage.RetryMaxDelay,
		StaleAfter:     cfg.Worker.StaleAfter,
		SweepInterval:  cfg.Worker.SweepInterval,
	})
	return a, nil
}

// Close releases the queue, cache and database pool in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
