// Package main provides the worker application entry point.
// The worker consumes evaluation tasks from Redpanda and drives each job
// through extraction, report generation and scoring.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/notify"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/notify/ses"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/storage/s3"
	tikaext "github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/app"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/usecase"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/visa"
)

const metricsAddr = ":9090"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))
	if err := run(cfg); err != nil {
		slog.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := s3.New(ctx, cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	aiClient, closeAI, err := buildAIClient(ctx, cfg, rdb, pool)
	if err != nil {
		return err
	}
	defer closeAI()

	var notifier domain.Notifier = notify.Noop{}
	if cfg.NotificationsEnabled() {
		sesNotifier, err := ses.New(ctx, cfg)
		if err != nil {
			return err
		}
		notifier = sesNotifier
		slog.Info("completion emails enabled", slog.String("from", cfg.SESFromAddress))
	}

	jobRepo := postgres.NewJobRepo(pool)
	workflow := &usecase.ScoringWorkflow{
		Jobs:      jobRepo,
		Docs:      postgres.NewDocumentRepo(pool),
		Results:   postgres.NewResultRepo(pool),
		Storage:   store,
		Extractor: tikaext.New(cfg.TikaURL),
		AI:        aiClient,
		Catalog:   visa.Default(),
		Notifier:  notifier,
		Tokens:    tokencount.NewCounter(),
		Opts:      usecase.WorkflowOptionsFromConfig(cfg),
	}

	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic, cfg.ConsumerMaxConcurrency,
		func(ctx context.Context, task domain.EvaluateTask) error {
			return workflow.Run(ctx, task.JobID, nil)
		})
	if err != nil {
		return err
	}
	defer consumer.Close()

	metricsSrv := &http.Server{Addr: metricsAddr, ReadHeaderTimeout: 10 * time.Second}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv.Handler = mux

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		app.NewStuckJobSweeper(jobRepo, cfg.StuckJobThreshold, cfg.StuckJobInterval).Run(gctx)
		return nil
	})
	if cfg.DataRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(postgres.PoolBeginner{Pool: pool}, store, cfg.DataRetentionDays)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
		g.Go(func() error {
			cleanup.RunPeriodic(gctx, cfg.CleanupInterval)
			return nil
		})
	}
	g.Go(func() error {
		slog.Info("worker metrics server starting", slog.String("addr", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	slog.Info("worker started, waiting for shutdown signal")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildAIClient chains the configured providers behind a fallback client and,
// when Redis is available, a bucket shared by every worker. Without any key
// the deterministic stub is used so local runs still complete.
func buildAIClient(ctx context.Context, cfg config.Config, rdb *redis.Client, pool *pgxpool.Pool) (domain.AIClient, func(), error) {
	closeFn := func() {}
	var providers []ai.Provider
	if cfg.OpenRouterAPIKey != "" {
		providers = append(providers, openrouter.New(cfg))
	}
	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, closeFn, err
		}
		providers = append(providers, gc)
		closeFn = func() { _ = gc.Close() }
	}
	if len(providers) == 0 {
		slog.Warn("no AI provider key configured, using stub generator")
		providers = append(providers, stub.New())
	}
	for _, p := range providers {
		slog.Info("AI provider enabled", slog.String("provider", p.Name()))
	}

	var client domain.AIClient = ai.NewFallbackClient(time.Minute, providers...)
	if rdb == nil {
		return client, closeFn, nil
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, pool, map[string]ratelimiter.BucketConfig{
		ai.GenerateBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.AIRequestsPerMinute),
	})
	if err := limiter.WarmFromStore(ctx); err != nil {
		slog.Warn("rate limiter warm-up failed", slog.Any("error", err))
	}
	slog.Info("shared AI rate limit enabled", slog.Int("per_minute", cfg.AIRequestsPerMinute))
	return ai.NewRateLimitedClient(client, limiter, ai.GenerateBucket, 0), closeFn, nil
}
