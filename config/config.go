package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	Server        ServerConfig
	KV            KVConfig
	Redis         RedisConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Transport     TransportConfig
	Gateway       GatewayConfig
	RAG           RAGConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int           `validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	CORSOrigins     []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// KVConfig selects the key-value backend
type KVConfig struct {
	Backend string `validate:"oneof=redis postgres"`
}

// RedisConfig holds Redis connection configuration.
// URL takes precedence over the individual fields.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds one entry per provider slot plus the embedding backend
type ProvidersConfig struct {
	Primary    ProviderConfig
	SecondaryA ProviderConfig
	SecondaryB ProviderConfig
	SecondaryC ProviderConfig
	Local      ProviderConfig
	Embeddings ProviderConfig
}

// ProviderConfig holds a single provider's settings
type ProviderConfig struct {
	Enabled     bool
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int     `validate:"gte=0"`
	Temperature float64 `validate:"gte=0,lte=2"`
}

// TransportConfig holds the outbound retry and timeout policy
type TransportConfig struct {
	Retries          int           `validate:"gte=0,lte=10"`
	Timeout          time.Duration `validate:"gt=0"`
	MaxTimeout       time.Duration `validate:"gt=0"`
	RateLimitBackoff time.Duration `validate:"gte=0"`
	RetryBackoff     time.Duration `validate:"gte=0"`
}

// GatewayConfig holds orchestration settings
type GatewayConfig struct {
	ForcePrimary       bool
	TopK               int `validate:"gte=1,lte=20"`
	StructuredAttempts int `validate:"gte=1,lte=5"`
	Apology            string
	PrimaryBlockTTL    time.Duration `validate:"gte=0"`
	SecondaryABlockTTL time.Duration `validate:"gte=0"`
	SecondaryBBlockTTL time.Duration `validate:"gte=0"`
	SecondaryCBlockTTL time.Duration `validate:"gte=0"`
}

// RAGConfig holds retrieval store settings
type RAGConfig struct {
	Enabled   bool
	KeyPrefix string `validate:"required"`
	PageSize  int64  `validate:"gte=1,lte=10000"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string `validate:"oneof=json console"`
	MetricsEnabled bool
}

var validate = validator.New()

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		KV: KVConfig{
			Backend: strings.ToLower(getEnv("KV_BACKEND", "redis")),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			Primary: loadProviderConfig("OPENAI", ProviderConfig{
				APIKey:  openAIKey,
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			}),
			SecondaryA: loadProviderConfig("OPENROUTER", ProviderConfig{
				BaseURL: "https://openrouter.ai/api/v1",
				Model:   "meta-llama/llama-3.1-8b-instruct",
			}),
			SecondaryB: loadProviderConfig("ANTHROPIC", ProviderConfig{
				BaseURL:   "https://api.anthropic.com",
				Model:     "claude-3-5-haiku-latest",
				MaxTokens: 1024,
			}),
			SecondaryC: loadProviderConfig("HUGGINGFACE", ProviderConfig{
				BaseURL:   "https://api-inference.huggingface.co",
				Model:     "mistralai/Mistral-7B-Instruct-v0.3",
				MaxTokens: 512,
			}),
			Local: loadProviderConfig("OLLAMA", ProviderConfig{
				Enabled: true,
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1",
			}),
			Embeddings: loadProviderConfig("EMBEDDINGS", ProviderConfig{
				APIKey:  openAIKey,
				BaseURL: "https://api.openai.com/v1",
				Model:   "text-embedding-3-small",
			}),
		},
		Transport: TransportConfig{
			Retries:          getEnvAsInt("TRANSPORT_RETRIES", 2),
			Timeout:          getEnvAsDuration("TRANSPORT_TIMEOUT", 15*time.Second),
			MaxTimeout:       getEnvAsDuration("TRANSPORT_MAX_TIMEOUT", 60*time.Second),
			RateLimitBackoff: getEnvAsDuration("TRANSPORT_RATE_LIMIT_BACKOFF", 2000*time.Millisecond),
			RetryBackoff:     getEnvAsDuration("TRANSPORT_RETRY_BACKOFF", 600*time.Millisecond),
		},
		Gateway: GatewayConfig{
			ForcePrimary:       getEnvAsBool("GATEWAY_FORCE_PRIMARY", false),
			TopK:               getEnvAsInt("GATEWAY_TOP_K", 3),
			StructuredAttempts: getEnvAsInt("GATEWAY_STRUCTURED_ATTEMPTS", 2),
			Apology:            getEnv("GATEWAY_APOLOGY", ""),
			PrimaryBlockTTL:    getEnvAsDuration("GATEWAY_PRIMARY_BLOCK_TTL", 60*time.Second),
			SecondaryABlockTTL: getEnvAsDuration("GATEWAY_SECONDARY_A_BLOCK_TTL", 60*time.Second),
			SecondaryBBlockTTL: getEnvAsDuration("GATEWAY_SECONDARY_B_BLOCK_TTL", 90*time.Second),
			SecondaryCBlockTTL: getEnvAsDuration("GATEWAY_SECONDARY_C_BLOCK_TTL", 90*time.Second),
		},
		RAG: RAGConfig{
			Enabled:   getEnvAsBool("RAG_ENABLED", true),
			KeyPrefix: getEnv("RAG_KEY_PREFIX", "rag:"),
			PageSize:  int64(getEnvAsInt("RAG_PAGE_SIZE", 500)),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return err
	}

	// Postgres backend needs a database
	if c.KV.Backend == "postgres" {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" && c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
	}

	if c.Transport.MaxTimeout < c.Transport.Timeout {
		return fmt.Errorf("transport max timeout (%s) must not be below timeout (%s)",
			c.Transport.MaxTimeout, c.Transport.Timeout)
	}

	// At least one remote provider key required in production
	if c.IsProduction() {
		if c.Providers.Primary.APIKey == "" &&
			c.Providers.SecondaryA.APIKey == "" &&
			c.Providers.SecondaryB.APIKey == "" &&
			c.Providers.SecondaryC.APIKey == "" {
			return fmt.Errorf("at least one remote LLM provider must be configured in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "gateway"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "gateway"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadProviderConfig reads <PREFIX>_ENABLED, _API_KEY, _BASE_URL, _MODEL,
// _MAX_TOKENS and _TEMPERATURE. A provider is enabled by default when it has
// an API key, or when the defaults say so.
func loadProviderConfig(prefix string, defaults ProviderConfig) ProviderConfig {
	apiKey := getEnv(prefix+"_API_KEY", defaults.APIKey)
	return ProviderConfig{
		Enabled:     getEnvAsBool(prefix+"_ENABLED", defaults.Enabled || apiKey != ""),
		APIKey:      apiKey,
		BaseURL:     getEnv(prefix+"_BASE_URL", defaults.BaseURL),
		Model:       getEnv(prefix+"_MODEL", defaults.Model),
		MaxTokens:   getEnvAsInt(prefix+"_MAX_TOKENS", defaults.MaxTokens),
		Temperature: getEnvAsFloat(prefix+"_TEMPERATURE", defaults.Temperature),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
