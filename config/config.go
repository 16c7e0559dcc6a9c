package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Gateway       GatewayConfig
	Providers     ProvidersConfig
	Ontology      OntologyConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LogString returns a connection description safe for logging
func (c DatabaseConfig) LogString() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

// RedisConfig holds optional Redis configuration for the distributed rate
// limiter and response cache backends
type RedisConfig struct {
	URL string
}

// GatewayConfig holds policy-enforcement settings
type GatewayConfig struct {
	// MaxRequestsPerMinute is the per-caller sliding-window limit; zero
	// disables rate limiting.
	MaxRequestsPerMinute int

	CacheEnabled bool
	CacheTTL     time.Duration

	// Backend selects the rate limiter / cache implementation: "memory" or
	// "redis".
	Backend string

	MaxTokensPerRequest int
	MaxCostPerRequest   float64

	BlockedTerms []string
	DomainTerms  []string

	// SafetyClassifierEnabled routes the safety guardrail's model-based
	// classification through the configured provider.
	SafetyClassifierEnabled bool

	// DisabledGuardrails lists guardrail ids registered but toggled off.
	DisabledGuardrails []string
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OntologyConfig holds the domain-ontology collaborator configuration
type OntologyConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "gateway"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "gateway"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Gateway: GatewayConfig{
			MaxRequestsPerMinute:    getEnvAsInt("GATEWAY_MAX_REQUESTS_PER_MINUTE", 60),
			CacheEnabled:            getEnvAsBool("GATEWAY_CACHE_ENABLED", true),
			CacheTTL:                getEnvAsDuration("GATEWAY_CACHE_TTL", time.Hour),
			Backend:                 getEnv("GATEWAY_BACKEND", "memory"),
			MaxTokensPerRequest:     getEnvAsInt("GATEWAY_MAX_TOKENS_PER_REQUEST", 4000),
			MaxCostPerRequest:       getEnvAsFloat("GATEWAY_MAX_COST_PER_REQUEST", 10),
			BlockedTerms:            getEnvAsSlice("GATEWAY_BLOCKED_TERMS", nil),
			DomainTerms:             getEnvAsSlice("GATEWAY_DOMAIN_TERMS", nil),
			SafetyClassifierEnabled: getEnvAsBool("GATEWAY_SAFETY_CLASSIFIER_ENABLED", false),
			DisabledGuardrails:      getEnvAsSlice("GATEWAY_DISABLED_GUARDRAILS", nil),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),
			},
		},
		Ontology: OntologyConfig{
			BaseURL: getEnv("ONTOLOGY_BASE_URL", "http://localhost:8090"),
			APIKey:  getEnv("ONTOLOGY_API_KEY", ""),
			Timeout: getEnvAsDuration("ONTOLOGY_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Gateway.Backend != "memory" && c.Gateway.Backend != "redis" {
		return fmt.Errorf("invalid gateway backend: %s", c.Gateway.Backend)
	}
	if c.Gateway.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("redis backend selected but REDIS_URL is not set")
	}
	return nil
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
