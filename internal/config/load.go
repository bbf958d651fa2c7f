// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces environment overrides. A double underscore separates
// sections: CONTACTBOOK_STORE__DATABASE_URL sets store.database_url.
const EnvPrefix = "CONTACTBOOK_"

// legacyEnv maps unprefixed variables to keys. They apply only when neither
// the file nor a CONTACTBOOK_* variable set the key.
var legacyEnv = map[string]string{
	"DATABASE_URL":   "store.database_url",
	"REDIS_URL":      "redis.url",
	"JWT_SECRET_KEY": "auth.token_secret",
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":       "http.addr",
	"trusted-proxies": "http.trusted_proxies",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"store-driver":    "store.driver",
	"database-url":    "store.database_url",
	"mongo-uri":       "store.mongo_uri",
	"mongo-database":  "store.mongo_database",
	"auto-migrate":    "store.auto_migrate",
	"redis-url":       "redis.url",
	"limiter-key":     "limiter.key",
	"max-attempts":    "limiter.max_attempts",
	"window-seconds":  "limiter.window_duration_seconds",
}

// RegisterFlags adds the overridable settings to fs with defaults from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("trusted-proxies", nil, "reverse proxy CIDRs whose X-Forwarded-For is honored")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store-driver", d.Store.Driver, "user store (postgres, mongo, memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("mongo-uri", "", "MongoDB connection URI")
	fs.String("mongo-database", d.Store.MongoDatabase, "MongoDB database name")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations before serving")
	fs.String("redis-url", "", "Redis URL for the shared login attempt store")
	fs.String("limiter-key", d.Limiter.Key, "login limiter key (ip, email)")
	fs.Int("max-attempts", d.Limiter.MaxAttempts, "login attempts allowed per window")
	fs.Int("window-seconds", d.Limiter.WindowDurationSeconds, "login limiter window in seconds")
}

// Load builds the effective configuration. Later layers win: defaults, the
// YAML file at path (skipped when path is empty), environment variables, then
// flags the user set explicitly. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" && !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("variable", name).Wrap(err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read environment").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKeys[f.Name]
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
