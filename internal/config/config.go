// Package config provides configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/pkg/errors"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int
	Env          string

	// Database
	DatabaseURL string

	// Auth settings
	JWTSecret string
	JWTIssuer string

	// Sessions
	ContextWindow int

	// Upstream webhooks
	CompletionDeadline time.Duration // internal deadline, answered with 202
	UpstreamTimeout    time.Duration // transport timeout, answered with 504

	// HTTP limits
	BodyLimit      string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel  string
	LogFormat string

	// Models seeded into the store at startup.
	Models []domain.ModelConfig
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:           8080,
		InternalPort:       8081,
		Env:                "production",
		DatabaseURL:        "file:gateway.db?cache=shared&mode=rwc",
		JWTIssuer:          "openai-like-api",
		ContextWindow:      10,
		CompletionDeadline: 30 * time.Second,
		UpstreamTimeout:    60 * time.Second,
		BodyLimit:          "10M",
		RateLimitRPS:       10,
		RateLimitBurst:     100,
		CORSOrigins:        []string{"*"},
		PingInterval:       30 * time.Second,
		WriteTimeout:       10 * time.Second,
		ReadTimeout:        60 * time.Second,
		MaxMessageSize:     65536,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fc, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg); err != nil {
			return nil, errors.Wrapf(err, "applying config file %s", path)
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.InternalPort = getEnvInt("INTERNAL_PORT", cfg.InternalPort)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.ContextWindow = getEnvInt("CONTEXT_WINDOW", cfg.ContextWindow)
	cfg.CompletionDeadline = getEnvMillis("COMPLETION_DEADLINE_MS", cfg.CompletionDeadline)
	cfg.UpstreamTimeout = getEnvMillis("UPSTREAM_TIMEOUT_MS", cfg.UpstreamTimeout)
	cfg.BodyLimit = getEnv("BODY_LIMIT", cfg.BodyLimit)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.PingInterval = getEnvMillis("WS_PING_INTERVAL_MS", cfg.PingInterval)
	cfg.WriteTimeout = getEnvMillis("WS_WRITE_TIMEOUT_MS", cfg.WriteTimeout)
	cfg.ReadTimeout = getEnvMillis("WS_READ_TIMEOUT_MS", cfg.ReadTimeout)
	cfg.MaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(cfg.MaxMessageSize)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.ContextWindow <= 0 {
		return errors.Errorf("CONTEXT_WINDOW must be positive, got %d", c.ContextWindow)
	}
	if c.CompletionDeadline <= 0 {
		return errors.New("COMPLETION_DEADLINE_MS must be positive")
	}
	if c.UpstreamTimeout > 0 && c.CompletionDeadline > c.UpstreamTimeout {
		return errors.Errorf("COMPLETION_DEADLINE_MS (%s) must not exceed UPSTREAM_TIMEOUT_MS (%s)",
			c.CompletionDeadline, c.UpstreamTimeout)
	}
	if c.RateLimitRPS < 0 {
		return errors.New("RATE_LIMIT_RPS must not be negative")
	}
	for i, m := range c.Models {
		if m.Slug == "" {
			return errors.Errorf("models[%d].slug is required", i)
		}
		if m.ChatURL == "" && m.CompletionURL == "" {
			return errors.Errorf("model %q needs a chat or completions webhook url", m.Slug)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
