package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/chat-gateway/config"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/providers"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		KV:          config.KVConfig{Backend: "redis"},
		Redis:       config.RedisConfig{Addr: redisAddr},
		Providers: config.ProvidersConfig{
			Primary: config.ProviderConfig{
				Enabled: true,
				APIKey:  "sk-test",
				BaseURL: "http://127.0.0.1:1/v1",
				Model:   "gpt-4o-mini",
			},
			SecondaryA: config.ProviderConfig{BaseURL: "http://127.0.0.1:1/v1"},
			SecondaryB: config.ProviderConfig{BaseURL: "http://127.0.0.1:1"},
			SecondaryC: config.ProviderConfig{BaseURL: "http://127.0.0.1:1"},
			Local:      config.ProviderConfig{Enabled: true, BaseURL: "http://127.0.0.1:1"},
			Embeddings: config.ProviderConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"},
		},
		Transport: config.TransportConfig{
			Retries:    0,
			Timeout:    time.Second,
			MaxTimeout: 2 * time.Second,
		},
		Gateway: config.GatewayConfig{
			TopK:               3,
			StructuredAttempts: 2,
			PrimaryBlockTTL:    time.Minute,
		},
		RAG: config.RAGConfig{Enabled: true, KeyPrefix: "rag:", PageSize: 100},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t, mr.Addr())
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.KV)
		assert.NotNil(t, deps.Transport)
		assert.NoError(t, deps.KV.Ping(ctx))

		// Verify providers, one per variant in priority order
		require.NotNil(t, deps.ProviderRegistry)
		assert.Equal(t, len(providers.Variants), deps.ProviderRegistry.Count())
		assert.Equal(t, []string{"openai", "openrouter", "anthropic", "huggingface", "ollama"}, deps.ProviderRegistry.ListProviders())

		primary, err := deps.ProviderRegistry.Get(providers.Primary)
		require.NoError(t, err)
		assert.True(t, primary.Enabled())
		secondary, err := deps.ProviderRegistry.Get(providers.SecondaryA)
		require.NoError(t, err)
		assert.False(t, secondary.Enabled())

		// Retrieval and observability
		assert.NotNil(t, deps.Embedder)
		assert.NotNil(t, deps.RAG)
		assert.NotNil(t, deps.Prometheus)
		assert.NotNil(t, deps.Tracker)
		assert.NotNil(t, deps.Gateway)

		require.NoError(t, deps.Close(ctx))
	})

	t.Run("provider chain is logged in priority order", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		core, logs := observer.New(zapcore.InfoLevel)

		deps, err := NewDependencies(ctx, testConfig(t, mr.Addr()), zap.New(core))
		require.NoError(t, err)
		defer deps.Close(ctx)

		entries := logs.FilterMessage("provider chain ready").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(5), fields["count"])
		assert.Equal(t, []interface{}{"openai", "openrouter", "anthropic", "huggingface", "ollama"}, fields["order"])
	})

	t.Run("retrieval and metrics disabled", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t, mr.Addr())
		cfg.RAG.Enabled = false
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.RAG)
		assert.Nil(t, deps.Prometheus)
		assert.IsType(t, observability.NoopMetrics{}, deps.Metrics)
	})

	t.Run("block markers land in the kv store", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t, mr.Addr())

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		deps.Tracker.BlockProvider(ctx, "openai", time.Minute)
		assert.True(t, deps.Tracker.IsBlocked("openai"))
		assert.True(t, mr.Exists("blocked:openai"))
	})

	t.Run("chat falls through to the apology when every provider is unreachable", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		cfg := testConfig(t, mr.Addr())
		cfg.Gateway.Apology = "unavailable"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		reply := deps.Gateway.Chat(ctx, "hello", providers.ChatContext{})
		assert.Equal(t, "unavailable", reply.Text)
		assert.NotEmpty(t, reply.RequestID)
		assert.Error(t, reply.Augmentation.Degraded)
	})

	t.Run("redis connection failure", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		deps, err := NewDependencies(ctx, testConfig(t, addr), zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize kv store")
	})
}
