// Package main provides the worker entry point. The worker consumes agent
// tasks from the queue, runs them through the provider gate and retry
// executor, and serves the operational listener with metrics and the live
// gate admin controls.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/scholarly"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/agents"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/app"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/discovery"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/gate"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
)

const operationalAddr = ":9090"

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", err))
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

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("database schema: %w", err)
	}

	// Provider gate: quotas from defaults plus the optional YAML overlay.
	quotas, err := config.LoadProviderQuotas(cfg.ProvidersConfigPath)
	if err != nil {
		return fmt.Errorf("provider quotas: %w", err)
	}
	gateQuotas := make(map[domain.Provider]gate.Quota, len(quotas))
	for name, q := range quotas {
		gateQuotas[domain.Provider(name)] = gate.Quota{RatePerSec: q.RatePerSec, Burst: q.Burst}
	}
	g := gate.New(gateQuotas, gate.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		MaxProbes:        cfg.BreakerHalfOpenProbes,
	})

	exec := retry.New(g, basePolicy(cfg), policyOverrides(cfg, quotas))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	clients, models := buildProviderClients(cfg, rdb)

	crossref := scholarly.NewCrossref(cfg)
	semantic := scholarly.NewSemanticScholar(cfg)

	sources := []discovery.Source{
		discovery.NewCitationSource(crossref, exec),
		discovery.NewAuthorSource(crossref, exec),
		discovery.NewVenueSource(crossref, exec),
		discovery.NewSimilaritySource(semantic, exec),
		discovery.NewResearchSource(clients[domain.ProviderPerplexity], exec),
	}
	var synth discovery.Synthesizer
	if cfg.DiscoveryEnableSynth {
		synth = discovery.NewAISynthesizer(clients[domain.ProviderAnthropic], exec, domain.ProviderAnthropic)
	}
	coord := discovery.New(sources, synth)

	core := agents.NewCore(exec, clients, tokencount.NewCounter(), models)
	repos := agents.Repos{
		Papers:      postgres.NewPaperContentRepo(pool),
		Summaries:   postgres.NewSummaryRepo(pool),
		Discoveries: postgres.NewDiscoveryRepo(pool),
		Tags:        postgres.NewTagRepo(pool),
	}
	registry := agents.BuildAgents(core, repos, crossref, coord, discoveryDefaults(cfg))
	fallbacks := agents.BuildFallbacks(cfg, core, repos.Summaries, repos.Papers)
	runner := agents.NewRunner(registry, fallbacks)
	slog.Info("agents wired",
		slog.Int("agents", len(registry.Kinds())),
		slog.Any("fallbacks", fallbacks.Available()))

	taskRepo := postgres.NewTaskRepo(pool)
	handler := redpanda.NewTaskHandler(taskRepo, runner, cfg.TaskDeadline)
	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "ai-paper-analyzer-workers", handler, cfg.ConsumerMinWorkers, cfg.ConsumerMaxWorkers)
	if err != nil {
		return fmt.Errorf("queue consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	// Mirror gate counters to storage so the API server can report them.
	usageRepo := postgres.NewUsageRepo(pool)
	if cfg.UsageFlushInterval > 0 {
		go flushUsage(ctx, g, usageRepo, cfg.UsageFlushInterval)
	}

	cleanup := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
	go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)

	admin := httpserver.NewGateAdmin(g, cfg.AdminAPITokenHash)
	opSrv := &http.Server{
		Addr:        operationalAddr,
		Handler:     app.BuildWorkerRouter(admin, consumer.IsHealthy),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("operational listener", slog.String("addr", opSrv.Addr))
		if err := opSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("operational listener error", slog.Any("error", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting task consumer")
		if err := consumer.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return fmt.Errorf("consumer: %w", err)
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer stop()
	_ = opSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
	return nil
}

// buildProviderClients wires one client per provider. Cloud providers
// without a configured key fall back to the deterministic stub in dev so the
// pipeline runs end to end without spending quota; the stub never reaches
// production because config validation logs loudly and the providers fail
// classification anyway.
func buildProviderClients(cfg config.Config, rdb *redis.Client) (map[domain.Provider]domain.ProviderClient, map[domain.Provider]string) {
	cached := func(c domain.ProviderClient, name string) domain.ProviderClient {
		if rdb == nil {
			return c
		}
		return ai.NewResponseCache(c, rdb, name, cfg.AICacheTTL)
	}
	pick := func(keyed bool, c domain.ProviderClient, provider string) domain.ProviderClient {
		if keyed {
			return cached(c, provider)
		}
		if cfg.IsDev() || cfg.IsTest() {
			slog.Warn("no api key configured, using stub client", slog.String("provider", provider))
			return stub.New()
		}
		return cached(c, provider)
	}

	clients := map[domain.Provider]domain.ProviderClient{
		domain.ProviderOpenAI:     pick(cfg.OpenAIAPIKey != "", real.NewOpenAI(cfg), "openai"),
		domain.ProviderAnthropic:  pick(cfg.AnthropicAPIKey != "", real.NewAnthropic(cfg), "anthropic"),
		domain.ProviderPerplexity: pick(cfg.PerplexityAPIKey != "", real.NewPerplexity(cfg), "perplexity"),
		// Ollama is local and keyless.
		domain.ProviderOllama: cached(real.NewOllama(cfg), "ollama"),
	}
	models := map[domain.Provider]string{
		domain.ProviderOpenAI:     cfg.OpenAIModel,
		domain.ProviderAnthropic:  cfg.AnthropicModel,
		domain.ProviderPerplexity: cfg.PerplexityModel,
		domain.ProviderOllama:     cfg.OllamaModel,
	}
	return clients, models
}

func basePolicy(cfg config.Config) retry.Policy {
	initial, rateLimited, maxDelay, multiplier, jitter := cfg.GetRetryDefaults()
	return retry.Policy{
		MaxAttempts:             cfg.RetryMaxAttempts,
		RateLimitedMaxAttempts:  cfg.RetryRateLimitedMaxAttempts,
		InitialDelay:            initial,
		RateLimitedInitialDelay: rateLimited,
		MaxDelay:                maxDelay,
		Multiplier:              multiplier,
		Jitter:                  jitter,
	}
}

// policyOverrides lifts the per-provider retry knobs out of the quota file.
func policyOverrides(_ config.Config, quotas map[string]config.ProviderQuota) map[domain.Provider]retry.Policy {
	out := make(map[domain.Provider]retry.Policy)
	for name, q := range quotas {
		p := retry.Policy{
			MaxAttempts:             q.RetryMaxAttempts,
			RateLimitedMaxAttempts:  q.RetryRateLimitedMax,
			InitialDelay:            q.RetryInitialDelay,
			RateLimitedInitialDelay: q.RetryRateLimitedDelay,
			MaxDelay:                q.RetryMaxDelay,
		}
		if p == (retry.Policy{}) {
			continue
		}
		out[domain.Provider(name)] = p
	}
	return out
}

func discoveryDefaults(cfg config.Config) domain.DiscoveryConfig {
	sources := make([]domain.DiscoverySource, 0, len(cfg.DiscoveryEnabledSources))
	for _, s := range cfg.DiscoveryEnabledSources {
		if src := domain.DiscoverySource(s); src.Valid() {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		sources = domain.DiscoverySources()
	}
	return domain.DiscoveryConfig{
		EnabledSources:  sources,
		MaxPerSource:    cfg.DiscoveryMaxPerSource,
		MaxTotal:        cfg.DiscoveryMaxTotal,
		MinRelevance:    cfg.DiscoveryMinRelevance,
		Timeout:         cfg.DiscoveryTimeout,
		Parallel:        cfg.DiscoveryParallel,
		EnableSynthesis: cfg.DiscoveryEnableSynth,
	}
}

// flushUsage periodically persists gate counters for the API's provider
// stats surface. Failures are logged and retried on the next tick.
func flushUsage(ctx context.Context, g *gate.Gate, repo domain.UsageRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, snap := range g.UsageAll() {
				if snap.TotalRequests == 0 {
					continue
				}
				err := repo.Save(ctx, domain.ProviderUsageSnapshot{
					Provider:           snap.Provider,
					TotalRequests:      snap.TotalRequests,
					SuccessfulRequests: snap.SuccessfulRequests,
					FailedRequests:     snap.FailedRequests,
					AvgLatencyMillis:   snap.AvgLatencyMillis,
					BreakerState:       snap.BreakerState,
					LastRequestAt:      snap.LastRequestAt,
					RecordedAt:         now,
				})
				if err != nil {
					slog.Warn("usage snapshot flush failed",
						slog.String("provider", string(snap.Provider)),
						slog.Any("error", err))
				}
			}
		}
	}
}
