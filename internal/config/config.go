package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	AuthSecret       string        `env:"AUTH_SECRET"`
	AuthTrustHeaders bool          `env:"AUTH_TRUST_HEADERS" envDefault:"false"`
	AuthTokenTTL     time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`

	ChallengeTTL time.Duration `env:"CHALLENGE_TTL" envDefault:"10m"`
	SoloTTL      time.Duration `env:"SOLO_TTL" envDefault:"24h"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"10"`

	ResultWebhookURL   string `env:"RESULT_WEBHOOK_URL"`
	ResultWebhookToken string `env:"RESULT_WEBHOOK_TOKEN"`
	ResultWebhookRetry int    `env:"RESULT_WEBHOOK_RETRY" envDefault:"3"`

	PushTimeout time.Duration `env:"PUSH_TIMEOUT" envDefault:"5s"`
	MessagesDir string        `env:"MESSAGES_DIR"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads the process environment.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(&cfg)
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *AppConfig) (*AppConfig, error) {
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.ResultWebhookURL = strings.TrimSpace(cfg.ResultWebhookURL)
	cfg.MessagesDir = strings.TrimSpace(cfg.MessagesDir)

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	cfg.AllowedOrigins = origins

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.ResultWebhookRetry <= 0 {
		cfg.ResultWebhookRetry = 1
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return nil, errors.New("AUTH_SECRET is required")
	}
	if len(cfg.AuthSecret) < 16 {
		return nil, errors.New("AUTH_SECRET must be at least 16 bytes")
	}
	if cfg.DatabaseURL != "" && !validDatabaseURL(cfg.DatabaseURL) {
		return nil, errors.New("DATABASE_URL must start with postgres://, postgresql:// or sqlite:")
	}
	return cfg, nil
}

func validDatabaseURL(u string) bool {
	for _, p := range []string{"postgres://", "postgresql://", "sqlite:"} {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}
