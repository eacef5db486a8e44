package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Session       SessionConfig
	AI            AIConfig
	Payments      PaymentsConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig
	Environment   string

	// AppBaseURL is the public URL of the web app, used for payment redirects
	AppBaseURL string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
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

// SessionConfig holds the HS256 session token settings
type SessionConfig struct {
	JWTSecret string
	JWTIssuer string
}

// AIConfig selects the AI backends and holds per-vendor credentials
type AIConfig struct {
	Provider         string
	FallbackProvider string
	CallTimeout      time.Duration

	OpenAI    VendorConfig
	Gemini    VendorConfig
	Anthropic VendorConfig
	Grok      VendorConfig
}

// VendorConfig holds one AI vendor's credentials. Empty fields fall back to the backend defaults.
type VendorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// PaymentsConfig selects the payment backends and holds per-vendor credentials
type PaymentsConfig struct {
	Provider         string
	EnabledProviders []string
	CallTimeout      time.Duration
	PlansFile        string

	Stripe   StripeConfig
	Paystack PaystackConfig
}

// StripeConfig holds Stripe credentials and price IDs
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string
	PricePro      string
	PriceTeam     string
}

// PaystackConfig holds Paystack credentials and plan codes
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	PlanPro   string
	PlanTeam  string
}

// JobsConfig holds background and scheduled job settings
type JobsConfig struct {
	EmbeddingWorkers     int
	EmbeddingQueueSize   int
	EmbeddingMaxAttempts int
	UsageResetSchedule   string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		AppBaseURL:  strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: loadDatabaseConfig(),
		Session: SessionConfig{
			JWTSecret: getEnv("SESSION_JWT_SECRET", ""),
			JWTIssuer: getEnv("SESSION_JWT_ISSUER", "amebo"),
		},
		AI: AIConfig{
			Provider:         strings.ToLower(getEnv("AI_PROVIDER", "openai")),
			FallbackProvider: strings.ToLower(getEnv("AI_FALLBACK_PROVIDER", "openai")),
			CallTimeout:      getEnvAsDuration("AI_CALL_TIMEOUT", 60*time.Second),
			OpenAI: VendorConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Model:   getEnv("OPENAI_CHAT_MODEL", ""),
			},
			Gemini: VendorConfig{
				APIKey:  getEnv("GOOGLE_GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Model:   getEnv("GEMINI_MODEL", ""),
			},
			Anthropic: VendorConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
				Model:   getEnv("ANTHROPIC_MODEL", ""),
			},
			Grok: VendorConfig{
				APIKey:  getEnv("GROK_API_KEY", ""),
				BaseURL: getEnv("GROK_BASE_URL", ""),
				Model:   getEnv("GROK_MODEL", ""),
			},
		},
		Payments: PaymentsConfig{
			Provider:         strings.ToLower(getEnv("PAYMENT_PROVIDER", "stripe")),
			EnabledProviders: getEnvAsList("PAYMENT_ENABLED_PROVIDERS", nil),
			CallTimeout:      getEnvAsDuration("PAYMENT_CALL_TIMEOUT", 30*time.Second),
			PlansFile:        getEnv("PAYMENT_PLANS_FILE", ""),
			Stripe: StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				APIURL:        getEnv("STRIPE_API_URL", ""),
				PricePro:      getEnv("STRIPE_PRICE_PRO", "price_pro_monthly"),
				PriceTeam:     getEnv("STRIPE_PRICE_TEAM", "price_team_monthly"),
			},
			Paystack: PaystackConfig{
				SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
				BaseURL:   getEnv("PAYSTACK_BASE_URL", ""),
				PlanPro:   getEnv("PAYSTACK_PLAN_PRO", "PLN_pro_monthly"),
				PlanTeam:  getEnv("PAYSTACK_PLAN_TEAM", "PLN_team_monthly"),
			},
		},
		Jobs: JobsConfig{
			EmbeddingWorkers:     getEnvAsInt("EMBEDDING_WORKERS", 2),
			EmbeddingQueueSize:   getEnvAsInt("EMBEDDING_QUEUE_SIZE", 256),
			EmbeddingMaxAttempts: getEnvAsInt("EMBEDDING_MAX_ATTEMPTS", 3),
			UsageResetSchedule:   getEnv("USAGE_RESET_SCHEDULE", "@daily"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set.
// Vendor credentials are never required: a backend without its key fails on first use.
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.IsProduction() && c.Session.JWTSecret == "" {
		return fmt.Errorf("SESSION_JWT_SECRET is required in production")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI provider is required")
	}
	if c.Payments.Provider == "" {
		return fmt.Errorf("payment provider is required")
	}

	if c.Jobs.EmbeddingWorkers < 1 {
		return fmt.Errorf("EMBEDDING_WORKERS must be at least 1")
	}
	if c.Jobs.EmbeddingQueueSize < 1 {
		return fmt.Errorf("EMBEDDING_QUEUE_SIZE must be at least 1")
	}
	if c.Jobs.EmbeddingMaxAttempts < 1 {
		return fmt.Errorf("EMBEDDING_MAX_ATTEMPTS must be at least 1")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "text" {
		return fmt.Errorf("log format must be json or text, got %q", c.Observability.LogFormat)
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
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "amebo"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
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

// getEnvAsList splits a comma-separated value, dropping blanks
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
