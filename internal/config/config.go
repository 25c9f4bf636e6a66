// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionEncKey is the base64-encoded 32-byte key used to encrypt stored Telegram sessions.
	// Left unvalidated here: a missing or malformed key fails the session operations that need it.
	SessionEncKey string `mapstructure:"SESSION_ENC_KEY"`
	// TelegramAPIID is the app id from my.telegram.org.
	TelegramAPIID int `mapstructure:"TELEGRAM_API_ID"`
	// TelegramAPIHash is the app hash from my.telegram.org.
	TelegramAPIHash string `mapstructure:"TELEGRAM_API_HASH"`
	// CallbackSigningSecret signs callback bodies (X-Signature). Empty disables signing.
	CallbackSigningSecret string `mapstructure:"CALLBACK_SIGNING_SECRET"`
	// CallbackMaxAttempts is the total number of POST attempts per callback (default 5).
	CallbackMaxAttempts int `mapstructure:"CALLBACK_MAX_ATTEMPTS"`
	// CallbackInitialBackoff is the delay before the first retry; doubled on each further retry.
	CallbackInitialBackoff time.Duration `mapstructure:"CALLBACK_INITIAL_BACKOFF"`
	// CallbackTimeout bounds a single callback POST.
	CallbackTimeout time.Duration `mapstructure:"CALLBACK_TIMEOUT"`
	// RateLimitRequests is the number of send requests admitted per tenant per window.
	RateLimitRequests int `mapstructure:"RATE_LIMIT_REQUESTS"`
	// RateLimitWindow is the sliding window length.
	RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	// AuthUXDelay is the pause after a code send or resend before responding.
	AuthUXDelay time.Duration `mapstructure:"AUTH_UX_DELAY"`
	// PeerCacheSize is the capacity of the resolved-peer LRU cache.
	PeerCacheSize int `mapstructure:"PEER_CACHE_SIZE"`
	// DevCallbackReceiverRaw enables the dev-only loopback receiver when 1, true or yes. Read via DevCallbackReceiver.
	DevCallbackReceiverRaw string `mapstructure:"DEV_CALLBACK_RECEIVER"`
	// CORSAllowedOrigins is a comma-separated origin list for browser clients (default the admin UI on :5173).
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or console.
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). Empty endpoint means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_ENC_KEY", "")
	v.SetDefault("TELEGRAM_API_ID", 0)
	v.SetDefault("TELEGRAM_API_HASH", "")
	v.SetDefault("CALLBACK_SIGNING_SECRET", "")
	v.SetDefault("CALLBACK_MAX_ATTEMPTS", 5)
	v.SetDefault("CALLBACK_INITIAL_BACKOFF", "1s")
	v.SetDefault("CALLBACK_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")
	v.SetDefault("AUTH_UX_DELAY", "1s")
	v.SetDefault("PEER_CACHE_SIZE", 1024)
	v.SetDefault("DEV_CALLBACK_RECEIVER", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "tg-gateway")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.CallbackMaxAttempts < 1 {
		return nil, errors.New("config: CALLBACK_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.CallbackInitialBackoff <= 0 {
		return nil, errors.New("config: CALLBACK_INITIAL_BACKOFF must be positive")
	}
	if cfg.CallbackTimeout <= 0 {
		return nil, errors.New("config: CALLBACK_TIMEOUT must be positive")
	}
	if cfg.RateLimitRequests < 1 || cfg.RateLimitWindow <= 0 {
		return nil, errors.New("config: RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.AuthUXDelay < 0 {
		return nil, errors.New("config: AUTH_UX_DELAY must not be negative")
	}
	if cfg.PeerCacheSize < 1 {
		cfg.PeerCacheSize = 1024
	}
	if cfg.DevCallbackReceiver() && cfg.Env == "production" {
		return nil, errors.New("config: DEV_CALLBACK_RECEIVER must not be enabled when APP_ENV=production")
	}

	return &cfg, nil
}

// DevCallbackReceiver reports whether the dev loopback receiver is enabled (1, true or yes, case-insensitive).
func (c *Config) DevCallbackReceiver() bool {
	if c == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.DevCallbackReceiverRaw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// CORSOrigins returns the allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TelegramConfigured reports whether protocol app credentials are present.
func (c *Config) TelegramConfigured() bool {
	return c != nil && c.TelegramAPIID != 0 && strings.TrimSpace(c.TelegramAPIHash) != ""
}
