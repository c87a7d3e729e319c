// Command server starts the petition evaluator HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/storage/s3"
	tikaext "github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/app"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/usecase"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/visa"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI and job instrumentation.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	resRepo := postgres.NewResultRepo(pool)

	store, err := s3.New(ctx, cfg)
	if err != nil {
		slog.Error("object storage init failed", slog.Any("error", err))
		os.Exit(1)
	}

	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, redpanda.DefaultTransactionalID)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	deps := app.Dependencies{
		DB:      app.PingFunc(pool.Ping),
		Tika:    tikaext.New(cfg.TikaURL),
		Storage: store,
		Broker:  producer,
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		deps.Redis = app.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	uploadSvc := usecase.NewUploadService(docRepo, store)
	evalSvc := usecase.NewEvaluateService(jobRepo, docRepo, producer, visa.Default())
	resultSvc := usecase.NewResultService(jobRepo, resRepo)

	srv := httpserver.NewServer(cfg, uploadSvc, evalSvc, resultSvc, visa.Default(), app.BuildReadinessChecks(deps)...)
	if !cfg.AdminEnabled() {
		slog.Warn("admin credentials not configured, retry endpoint disabled")
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.Any("error", err))
	}
}
