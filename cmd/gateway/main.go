package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/structura/aip-gateway/config"
	"github.com/structura/aip-gateway/handlers"
	"github.com/structura/aip-gateway/repositories/postgres"
	"github.com/structura/aip-gateway/routes"
	"github.com/structura/aip-gateway/services/analytics"
	"github.com/structura/aip-gateway/services/cache"
	"github.com/structura/aip-gateway/services/cost"
	"github.com/structura/aip-gateway/services/gateway"
	"github.com/structura/aip-gateway/services/guardrails"
	"github.com/structura/aip-gateway/services/ontology"
	"github.com/structura/aip-gateway/services/providers"
	"github.com/structura/aip-gateway/services/ratelimit"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = db.Close() }()

	logRepo := postgres.NewRequestLogRepository(db, logger)

	analyticsSvc := analytics.NewService(logRepo, logger, analytics.DefaultConfig())
	if err := analyticsSvc.Start(); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}
	defer func() {
		if err := analyticsSvc.Stop(10 * time.Second); err != nil {
			logger.Error("analytics shutdown", zap.Error(err))
		}
	}()

	limiter, store, err := buildBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}

	estimator := cost.NewEstimator(cost.DefaultRates())

	registry := providers.NewRegistry()
	openaiInvoker := providers.NewOpenAIInvoker(providers.OpenAIConfig{
		APIKey:  cfg.Providers.OpenAI.APIKey,
		BaseURL: cfg.Providers.OpenAI.BaseURL,
		Timeout: cfg.Providers.OpenAI.Timeout,
	})
	registry.Register(openaiInvoker)

	ontologyClient := ontology.NewHTTPClient(ontology.Config{
		BaseURL: cfg.Ontology.BaseURL,
		APIKey:  cfg.Ontology.APIKey,
		Timeout: cfg.Ontology.Timeout,
	}, logger)

	chain := buildChain(cfg, estimator, ontologyClient, openaiInvoker, logger)

	gatewaySvc := gateway.NewService(limiter, store, chain, estimator, registry, analyticsSvc, logger)

	router := routes.Setup(&routes.Dependencies{
		Gateway:   handlers.NewGatewayHandler(gatewaySvc, logger),
		Analytics: handlers.NewAnalyticsHandler(analyticsSvc, logger),
		DB:        db,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildBackends selects the rate limiter and response cache implementations
// per config: in-process for a single instance, Redis-backed for shared state
// across instances.
func buildBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, cache.Store, error) {
	if cfg.Gateway.Backend == "redis" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		client := redis.NewClient(opt)

		limiter := ratelimit.NewRedisLimiter(client, cfg.Gateway.MaxRequestsPerMinute, logger)
		var store cache.Store
		if cfg.Gateway.CacheEnabled {
			store = cache.NewRedisStore(client, cfg.Gateway.CacheTTL)
		}
		return limiter, store, nil
	}

	limiter := ratelimit.NewMemoryLimiter(cfg.Gateway.MaxRequestsPerMinute, logger)
	var store cache.Store
	if cfg.Gateway.CacheEnabled {
		memStore := cache.NewMemoryStore(cfg.Gateway.CacheTTL, logger)
		go memStore.StartSweeper(ctx, 10*time.Minute)
		store = memStore
	}
	return limiter, store, nil
}

// buildChain registers the default guardrail set
func buildChain(
	cfg *config.Config,
	estimator *cost.Estimator,
	ontologyClient ontology.Client,
	classifier providers.Invoker,
	logger *zap.Logger,
) *guardrails.Chain {
	chain := guardrails.NewChain(logger)

	if !cfg.Gateway.SafetyClassifierEnabled {
		classifier = nil
	}

	chain.Register(guardrails.NewSafetyGuardrail(cfg.Gateway.BlockedTerms, classifier))
	chain.Register(guardrails.NewPIIGuardrail(nil))
	chain.Register(guardrails.NewDomainGuardrail(ontologyClient))
	chain.Register(guardrails.NewQualityGuardrail(cfg.Gateway.DomainTerms))
	chain.Register(guardrails.NewTokenLimitGuardrail(cfg.Gateway.MaxTokensPerRequest, estimator))
	chain.Register(guardrails.NewCostControlGuardrail(estimator, cfg.Gateway.MaxCostPerRequest))
	chain.Register(guardrails.NewHallucinationGuardrail())

	for _, id := range cfg.Gateway.DisabledGuardrails {
		if err := chain.SetEnabled(id, false); err != nil {
			logger.Warn("unknown guardrail in disabled list", zap.String("guardrail", id))
		}
	}

	return chain
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() || cfg.Observability.LogFormat == "json" {
		zcfg := zap.NewProductionConfig()
		if lvl, err := zap.ParseAtomicLevel(cfg.Observability.LogLevel); err == nil {
			zcfg.Level = lvl
		}
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}
