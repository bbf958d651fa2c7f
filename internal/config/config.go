// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

// Package config loads layered service configuration: flag defaults, an
// optional YAML file, CONTACTBOOK_* environment variables and explicit flags.
package config

import (
	"net/netip"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/contactbook/contactbook/internal/logging"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Limiter key sources.
const (
	LimiterKeyIP    = "ip"
	LimiterKeyEmail = "email"
)

const redacted = "<redacted>"

// Config is the full service configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" json:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" json:"log" yaml:"log"`
	Store   StoreConfig   `koanf:"store" json:"store" yaml:"store"`
	Redis   RedisConfig   `koanf:"redis" json:"redis" yaml:"redis"`
	Auth    AuthConfig    `koanf:"auth" json:"auth" yaml:"auth"`
	Limiter LimiterConfig `koanf:"limiter" json:"limiter" yaml:"limiter"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr                string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=API listen address"`
	ReadTimeoutSeconds  int    `koanf:"read_timeout_seconds" json:"read_timeout_seconds,omitempty" yaml:"read_timeout_seconds" jsonschema:"minimum=1"`
	WriteTimeoutSeconds int    `koanf:"write_timeout_seconds" json:"write_timeout_seconds,omitempty" yaml:"write_timeout_seconds" jsonschema:"minimum=1"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For entries
	// are believed when deriving the client address.
	TrustedProxies []string `koanf:"trusted_proxies" json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty" jsonschema:"description=reverse proxy CIDRs allowed to set X-Forwarded-For"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StoreConfig selects and configures the user-record store.
type StoreConfig struct {
	Driver        string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=postgres,enum=mongo,enum=memory"`
	DatabaseURL   string `koanf:"database_url" json:"database_url,omitempty" yaml:"database_url"`
	MongoURI      string `koanf:"mongo_uri" json:"mongo_uri,omitempty" yaml:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database" json:"mongo_database,omitempty" yaml:"mongo_database"`
	AutoMigrate   bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate"`
}

// RedisConfig enables the shared attempt store when URL is set.
type RedisConfig struct {
	URL       string `koanf:"url" json:"url,omitempty" yaml:"url"`
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix,omitempty" yaml:"key_prefix"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	TokenSecret     string `koanf:"token_secret" json:"token_secret,omitempty" yaml:"token_secret"`
	TokenTTLSeconds int    `koanf:"token_ttl_seconds" json:"token_ttl_seconds,omitempty" yaml:"token_ttl_seconds" jsonschema:"minimum=1"`
}

// LimiterConfig configures login throttling.
type LimiterConfig struct {
	WindowDurationSeconds  int    `koanf:"window_duration_seconds" json:"window_duration_seconds,omitempty" yaml:"window_duration_seconds" jsonschema:"minimum=1"`
	MaxAttempts            int    `koanf:"max_attempts" json:"max_attempts,omitempty" yaml:"max_attempts" jsonschema:"minimum=1"`
	Key                    string `koanf:"key" json:"key,omitempty" yaml:"key" jsonschema:"enum=ip,enum=email"`
	CleanupIntervalSeconds int    `koanf:"cleanup_interval_seconds" json:"cleanup_interval_seconds,omitempty" yaml:"cleanup_interval_seconds" jsonschema:"minimum=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":3000", ReadTimeoutSeconds: 10, WriteTimeoutSeconds: 10},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store:   StoreConfig{Driver: DriverPostgres, MongoDatabase: "contactbook"},
		Redis:   RedisConfig{KeyPrefix: "contactbook:login"},
		Auth:    AuthConfig{TokenTTLSeconds: 5 * 60 * 60},
		Limiter: LimiterConfig{
			WindowDurationSeconds:  15 * 60,
			MaxAttempts:            5,
			Key:                    LimiterKeyIP,
			CleanupIntervalSeconds: 60,
		},
	}
}

func invalid(key string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate checks required values, ranges and enumerations.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.ReadTimeoutSeconds <= 0 || c.HTTP.WriteTimeoutSeconds <= 0 {
		return invalid("http", "http timeouts must be positive")
	}
	for _, entry := range c.HTTP.TrustedProxies {
		if !validProxyEntry(entry) {
			return invalid("http.trusted_proxies", "http.trusted_proxies entry %q is not a CIDR or IP address", entry)
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.With("key", "log.level").Wrap(err)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "store.database_url is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return invalid("store.mongo_uri", "store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "store.driver must be postgres, mongo or memory, got %q", c.Store.Driver)
	}

	if c.Auth.TokenSecret == "" {
		return invalid("auth.token_secret", "auth.token_secret is required")
	}
	if c.Auth.TokenTTLSeconds <= 0 {
		return invalid("auth.token_ttl_seconds", "auth.token_ttl_seconds must be positive")
	}

	if c.Limiter.WindowDurationSeconds <= 0 {
		return invalid("limiter.window_duration_seconds", "limiter.window_duration_seconds must be positive")
	}
	if c.Limiter.MaxAttempts < 1 {
		return invalid("limiter.max_attempts", "limiter.max_attempts must be at least 1")
	}
	if c.Limiter.Key != LimiterKeyIP && c.Limiter.Key != LimiterKeyEmail {
		return invalid("limiter.key", "limiter.key must be 'ip' or 'email', got %q", c.Limiter.Key)
	}
	if c.Limiter.CleanupIntervalSeconds <= 0 {
		return invalid("limiter.cleanup_interval_seconds", "limiter.cleanup_interval_seconds must be positive")
	}
	return nil
}

func validProxyEntry(entry string) bool {
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

// TokenTTL returns the token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLSeconds) * time.Second
}

// LimiterWindow returns the fixed-window length.
func (c *Config) LimiterWindow() time.Duration {
	return time.Duration(c.Limiter.WindowDurationSeconds) * time.Second
}

// CleanupInterval returns how often idle in-memory limiter entries are swept.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Limiter.CleanupIntervalSeconds) * time.Second
}

// ReadTimeout returns the API server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the API server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print: the signing secret is masked and
// passwords are stripped from connection URLs.
func (c Config) Redacted() Config {
	if c.Auth.TokenSecret != "" {
		c.Auth.TokenSecret = redacted
	}
	c.Store.DatabaseURL = redactURL(c.Store.DatabaseURL)
	c.Store.MongoURI = redactURL(c.Store.MongoURI)
	c.Redis.URL = redactURL(c.Redis.URL)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
