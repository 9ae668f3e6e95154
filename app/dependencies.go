package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/internal/gateway"
	"github.com/upb/chat-gateway/internal/health"
	"github.com/upb/chat-gateway/internal/kv"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/persona"
	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/providers/anthropic"
	"github.com/upb/chat-gateway/internal/providers/huggingface"
	"github.com/upb/chat-gateway/internal/providers/ollama"
	"github.com/upb/chat-gateway/internal/providers/openai"
	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/internal/transport"
)

// Provider names used for logging, metrics and block markers
const (
	NamePrimary    = "openai"
	NameSecondaryA = "openrouter"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config    *config.Config
	Logger    *zap.Logger
	KV        kv.Store
	Transport *transport.Client

	// Providers
	ProviderRegistry *providers.Registry
	Tracker          *health.Tracker

	// Retrieval; RAG is nil when disabled
	Embedder rag.Embedder
	RAG      *rag.Store

	// Observability; Prometheus is nil when metrics are disabled
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics

	Gateway *gateway.Gateway
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initKV(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize kv store: %w", err)
	}

	deps.initTransport(cfg)

	if err := deps.initProviders(cfg); err != nil {
		_ = deps.KV.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initRetrieval(cfg)
	deps.initMetrics(cfg)
	deps.initGateway(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initKV connects the configured key-value backend
func (d *Dependencies) initKV(ctx context.Context, cfg *config.Config) error {
	switch cfg.KV.Backend {
	case "postgres":
		store, err := kv.NewPostgresStore(ctx, kv.PostgresConfig{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, d.Logger)
		if err != nil {
			return err
		}
		d.KV = store
		d.Logger.Info("postgres kv store connected",
			zap.String("connection", cfg.Database.LogString()))

	default:
		store, err := kv.NewRedisStore(ctx, kv.RedisConfig{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		d.KV = store
		d.Logger.Info("redis kv store connected", zap.String("addr", cfg.Redis.Addr))
	}
	return nil
}

// initTransport builds the shared outbound client
func (d *Dependencies) initTransport(cfg *config.Config) {
	d.Transport = transport.NewClient(transport.Options{
		Retries:          cfg.Transport.Retries,
		Timeout:          cfg.Transport.Timeout,
		MaxTimeout:       cfg.Transport.MaxTimeout,
		RateLimitBackoff: cfg.Transport.RateLimitBackoff,
		RetryBackoff:     cfg.Transport.RetryBackoff,
	}, d.Logger.Named("transport"))
}

// initProviders registers one adapter per variant. Disabled providers are
// registered too so they show up in status reports; the gateway skips them.
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()
	logger := d.Logger.Named("providers")
	p := cfg.Providers

	entries := []struct {
		variant  providers.Variant
		provider providers.Provider
	}{
		{providers.Primary, openai.NewAdapter(NamePrimary, providerConfig(p.Primary), d.Transport, logger)},
		{providers.SecondaryA, openai.NewAdapter(NameSecondaryA, providerConfig(p.SecondaryA), d.Transport, logger)},
		{providers.SecondaryB, anthropic.NewAdapter(providerConfig(p.SecondaryB), d.Transport, logger)},
		{providers.SecondaryC, huggingface.NewAdapter(providerConfig(p.SecondaryC), d.Transport, logger)},
		{providers.Local, ollama.NewAdapter(providerConfig(p.Local), d.Transport, logger)},
	}

	for _, e := range entries {
		if err := registry.Register(e.variant, e.provider); err != nil {
			return err
		}
		d.Logger.Info("registered provider",
			zap.String("provider", e.provider.Name()),
			zap.String("variant", string(e.variant)),
			zap.Bool("enabled", e.provider.Enabled()))
	}

	if !p.Primary.Enabled && !p.SecondaryA.Enabled && !p.SecondaryB.Enabled &&
		!p.SecondaryC.Enabled && !p.Local.Enabled {
		d.Logger.Warn("no LLM providers enabled, every chat will get the apology")
	}

	d.Logger.Info("provider chain ready",
		zap.Int("count", registry.Count()),
		zap.Strings("order", registry.ListProviders()))

	d.ProviderRegistry = registry
	d.Tracker = health.NewTracker(d.KV, d.Logger.Named("health"))
	return nil
}

// initRetrieval wires the embedder and the vector store
func (d *Dependencies) initRetrieval(cfg *config.Config) {
	if !cfg.RAG.Enabled {
		d.Logger.Info("retrieval augmentation disabled")
		return
	}
	if cfg.Providers.Embeddings.APIKey == "" {
		d.Logger.Warn("no embeddings API key, retrieval will degrade to empty results")
	}
	d.Embedder = openai.NewEmbedder(providerConfig(cfg.Providers.Embeddings), d.Transport, d.Logger.Named("embeddings"))
	d.RAG = rag.NewStore(d.KV, d.Embedder, rag.Config{
		KeyPrefix: cfg.RAG.KeyPrefix,
		PageSize:  cfg.RAG.PageSize,
	}, d.Logger.Named("rag"))
}

// initMetrics picks the Prometheus or no-op recorder
func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NoopMetrics{}
		return
	}
	d.Prometheus = observability.NewPrometheusMetrics()
	d.Metrics = d.Prometheus
}

// initGateway assembles the orchestrator
func (d *Dependencies) initGateway(cfg *config.Config) {
	deps := gateway.Deps{
		Registry: d.ProviderRegistry,
		Tracker:  d.Tracker,
		Persona:  persona.NewRoleBuilder(nil, persona.DefaultRole),
		Metrics:  d.Metrics,
	}
	if d.RAG != nil {
		deps.Retriever = d.RAG
	}

	d.Gateway = gateway.New(deps, gateway.Options{
		ForcePrimary:       cfg.Gateway.ForcePrimary,
		TopK:               cfg.Gateway.TopK,
		StructuredAttempts: cfg.Gateway.StructuredAttempts,
		Apology:            cfg.Gateway.Apology,
		BlockTTLs: map[providers.Variant]time.Duration{
			providers.Primary:    cfg.Gateway.PrimaryBlockTTL,
			providers.SecondaryA: cfg.Gateway.SecondaryABlockTTL,
			providers.SecondaryB: cfg.Gateway.SecondaryBBlockTTL,
			providers.SecondaryC: cfg.Gateway.SecondaryCBlockTTL,
		},
	}, d.Logger.Named("gateway"))
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.KV != nil {
		if err := d.KV.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kv store: %w", err))
		} else {
			d.Logger.Info("kv store closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func providerConfig(c config.ProviderConfig) providers.Config {
	return providers.Config{
		Enabled:     c.Enabled,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}
