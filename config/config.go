// Package config loads tradestream settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/tradestream-go/broker/redis"
	"github.com/ggoodman/tradestream-go/stream"
	"github.com/joeshaw/envdecode"
)

// Config holds every environment-driven setting. Defaults are provided via
// struct tags.
type Config struct {
	// BaseURL of the streaming API. ENV: TRADESTREAM_SSE_BASE_URL
	BaseURL string `env:"TRADESTREAM_SSE_BASE_URL"`
	// PublicPath used by subscriptions without a path. ENV: TRADESTREAM_SSE_PUBLIC_PATH
	PublicPath string `env:"TRADESTREAM_SSE_PUBLIC_PATH,default=/sse"`
	// ReconnectAttempts is the default retry budget. ENV: TRADESTREAM_RECONNECT_ATTEMPTS
	ReconnectAttempts int `env:"TRADESTREAM_RECONNECT_ATTEMPTS,default=3"`
	// ReconnectInterval is the default reconnect delay. ENV: TRADESTREAM_RECONNECT_INTERVAL
	ReconnectInterval time.Duration `env:"TRADESTREAM_RECONNECT_INTERVAL,default=1s"`
	// IdleTimeout closes silent connections; 0 disables it. ENV: TRADESTREAM_SSE_IDLE_TIMEOUT
	IdleTimeout time.Duration `env:"TRADESTREAM_SSE_IDLE_TIMEOUT,default=0s"`
	// ReconnectOnStreamEnd retries when the server ends a stream. ENV: TRADESTREAM_RECONNECT_ON_STREAM_END
	ReconnectOnStreamEnd bool `env:"TRADESTREAM_RECONNECT_ON_STREAM_END,default=false"`
	// Token is sent as a bearer token when set. ENV: TRADESTREAM_TOKEN
	Token string `env:"TRADESTREAM_TOKEN"`

	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// BrokerKeyPrefix for all broker keys. ENV: TRADESTREAM_BROKER_KEY_PREFIX
	BrokerKeyPrefix string `env:"TRADESTREAM_BROKER_KEY_PREFIX,default=tradestream:broker:"`

	// LogLevel is one of debug, info, warn, error. ENV: TRADESTREAM_LOG_LEVEL
	LogLevel string `env:"TRADESTREAM_LOG_LEVEL,default=info"`
}

// InvalidError reports a setting that failed validation.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// FromEnv decodes Config from the environment without validating it.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: decode environment: %w", err)
	}
	return cfg, nil
}

// Load decodes and validates Config.
func Load() (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return &InvalidError{Field: "TRADESTREAM_SSE_BASE_URL", Reason: "required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &InvalidError{Field: "TRADESTREAM_SSE_BASE_URL", Reason: "must be an absolute http or https URL"}
	}
	if c.ReconnectInterval < 0 {
		return &InvalidError{Field: "TRADESTREAM_RECONNECT_INTERVAL", Reason: "must not be negative"}
	}
	if c.IdleTimeout < 0 {
		return &InvalidError{Field: "TRADESTREAM_SSE_IDLE_TIMEOUT", Reason: "must not be negative"}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &InvalidError{Field: "TRADESTREAM_LOG_LEVEL", Reason: err.Error()}
	}
	return nil
}

// Stream returns the stream client settings.
func (c Config) Stream() stream.Config {
	return stream.Config{
		BaseURL:              c.BaseURL,
		PublicPath:           c.PublicPath,
		ReconnectAttempts:    c.ReconnectAttempts,
		ReconnectInterval:    c.ReconnectInterval,
		IdleTimeout:          c.IdleTimeout,
		ReconnectOnStreamEnd: c.ReconnectOnStreamEnd,
	}
}

// Redis returns the Redis broker settings.
func (c Config) Redis() redis.Config {
	return redis.Config{
		RedisAddr: c.RedisAddr,
		KeyPrefix: c.BrokerKeyPrefix,
	}
}

// Level returns the configured log level, falling back to info.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}
