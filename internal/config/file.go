package config

import (
	"os"
	"regexp"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the YAML configuration file layout. Zero values leave the
// corresponding setting untouched.
type File struct {
	Server struct {
		HTTPPort     int    `yaml:"http_port"`
		InternalPort int    `yaml:"internal_port"`
		Env          string `yaml:"env"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		JWTIssuer string `yaml:"jwt_issuer"`
	} `yaml:"auth"`
	Sessions struct {
		ContextWindow int `yaml:"context_window"`
	} `yaml:"sessions"`
	Upstream struct {
		Deadline string `yaml:"deadline"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"upstream"`
	HTTP struct {
		BodyLimit      string   `yaml:"body_limit"`
		RateLimitRPS   float64  `yaml:"rate_limit_rps"`
		RateLimitBurst int      `yaml:"rate_limit_burst"`
		CORSOrigins    []string `yaml:"cors_origins"`
	} `yaml:"http"`
	WebSocket struct {
		PingInterval   string `yaml:"ping_interval"`
		WriteTimeout   string `yaml:"write_timeout"`
		ReadTimeout    string `yaml:"read_timeout"`
		MaxMessageSize int64  `yaml:"max_message_size"`
	} `yaml:"websocket"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Models []ModelSeed `yaml:"models"`
}

// ModelSeed is a model entry of the config file. A seed without is_active
// is active.
type ModelSeed struct {
	Slug          string `yaml:"slug"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	ChatURL       string `yaml:"chat_webhook_url"`
	CompletionURL string `yaml:"completions_webhook_url"`
	IsActive      *bool  `yaml:"is_active"`
}

func (m ModelSeed) config() domain.ModelConfig {
	active := m.IsActive == nil || *m.IsActive
	return domain.ModelConfig{
		Slug:          m.Slug,
		Name:          m.Name,
		Description:   m.Description,
		ChatURL:       m.ChatURL,
		CompletionURL: m.CompletionURL,
		IsActive:      active,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ReadFile reads and parses a YAML configuration file. ${VAR} references are
// replaced with the environment variable value, or the empty string.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration content.
func Parse(data []byte) (*File, error) {
	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})

	var fc File
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	return &fc, nil
}

func (f *File) apply(cfg *Config) error {
	setInt(&cfg.HTTPPort, f.Server.HTTPPort)
	setInt(&cfg.InternalPort, f.Server.InternalPort)
	setString(&cfg.Env, f.Server.Env)
	setString(&cfg.DatabaseURL, f.Database.URL)
	setString(&cfg.JWTSecret, f.Auth.JWTSecret)
	setString(&cfg.JWTIssuer, f.Auth.JWTIssuer)
	setInt(&cfg.ContextWindow, f.Sessions.ContextWindow)
	setString(&cfg.BodyLimit, f.HTTP.BodyLimit)
	if f.HTTP.RateLimitRPS > 0 {
		cfg.RateLimitRPS = f.HTTP.RateLimitRPS
	}
	setInt(&cfg.RateLimitBurst, f.HTTP.RateLimitBurst)
	if len(f.HTTP.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.HTTP.CORSOrigins
	}
	if f.WebSocket.MaxMessageSize > 0 {
		cfg.MaxMessageSize = f.WebSocket.MaxMessageSize
	}
	setString(&cfg.LogLevel, f.Logging.Level)
	setString(&cfg.LogFormat, f.Logging.Format)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"upstream.deadline", f.Upstream.Deadline, &cfg.CompletionDeadline},
		{"upstream.timeout", f.Upstream.Timeout, &cfg.UpstreamTimeout},
		{"websocket.ping_interval", f.WebSocket.PingInterval, &cfg.PingInterval},
		{"websocket.write_timeout", f.WebSocket.WriteTimeout, &cfg.WriteTimeout},
		{"websocket.read_timeout", f.WebSocket.ReadTimeout, &cfg.ReadTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return errors.Wrapf(err, "parsing %s %q", d.name, d.raw)
		}
		*d.dst = v
	}

	for _, m := range f.Models {
		cfg.Models = append(cfg.Models, m.config())
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
