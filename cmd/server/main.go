// Package main provides the API server entry point: task submission, result
// polling, paper artifact reads and provider usage stats.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/app"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting api server", slog.String("env", cfg.AppEnv), slog.Int("port", cfg.Port))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("database schema: %w", err)
	}

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		return fmt.Errorf("queue producer: %w", err)
	}
	defer func() { _ = producer.Close() }()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	taskRepo := postgres.NewTaskRepo(pool)
	submit := usecase.NewSubmitService(taskRepo, producer)
	results := usecase.NewResultService(taskRepo)
	papers := usecase.NewPaperService(
		postgres.NewPaperContentRepo(pool),
		postgres.NewSummaryRepo(pool),
		postgres.NewTagRepo(pool),
		postgres.NewDiscoveryRepo(pool),
	)
	providers := usecase.NewProviderService(postgres.NewUsageRepo(pool))

	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(pool, redisClient(rdb), producer)
	if rdb == nil {
		// Redis is optional; an absent cache must not fail readiness.
		redisCheck = nil
	}

	srv := httpserver.NewServer(cfg, submit, results, papers, providers, dbCheck, redisCheck, kafkaCheck)
	handler := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("api server stopped")
	return nil
}

// redisClient adapts a possibly-nil client so readiness wiring stays uniform.
func redisClient(rdb *redis.Client) app.RedisClient {
	if rdb == nil {
		return nil
	}
	return app.GoRedis{C: rdb}
}
