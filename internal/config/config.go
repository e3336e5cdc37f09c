package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the chat service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"chat-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database
	DatabaseURL    string        `env:"DATABASE_URL,notEmpty"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Completion API
	CompletionBaseURL string        `env:"COMPLETION_BASE_URL" envDefault:"https://api.deepseek.com"`
	CompletionAPIKey  string        `env:"COMPLETION_API_KEY,notEmpty"`
	CompletionModel   string        `env:"COMPLETION_MODEL" envDefault:"deepseek-chat"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`

	// Authentication
	AuthEnabled  bool          `env:"AUTH_ENABLED" envDefault:"true"`
	AuthIssuer   string        `env:"AUTH_ISSUER"`
	AuthAudience string        `env:"AUTH_AUDIENCE"`
	AuthJWKSURL  string        `env:"AUTH_JWKS_URL"`
	JWKSRefresh  time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"5m"`
	ClockSkew    time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"30s"`

	// Identity webhook
	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET,notEmpty"`

	// Conversation retention
	RetentionEnabled      bool `env:"RETENTION_ENABLED" envDefault:"true"`
	RetentionIntervalMins int  `env:"RETENTION_INTERVAL_MINUTES" envDefault:"60"`
	RetentionEmptyAfterH  int  `env:"RETENTION_EMPTY_AFTER_HOURS" envDefault:"72"`

	// Observability
	EnableTracing bool   `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.CompletionBaseURL = strings.TrimSpace(cfg.CompletionBaseURL)
	if _, err := url.ParseRequestURI(cfg.CompletionBaseURL); err != nil {
		return nil, fmt.Errorf("invalid COMPLETION_BASE_URL: %w", err)
	}

	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
		if _, err := url.ParseRequestURI(cfg.AuthJWKSURL); err != nil {
			return nil, fmt.Errorf("invalid AUTH_JWKS_URL: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
