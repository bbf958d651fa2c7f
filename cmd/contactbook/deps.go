// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/contactbook/contactbook/internal/auth"
	"github.com/contactbook/contactbook/internal/auth/memory"
	authmongo "github.com/contactbook/contactbook/internal/auth/mongo"
	"github.com/contactbook/contactbook/internal/auth/postgres"
	"github.com/contactbook/contactbook/internal/config"
	"github.com/contactbook/contactbook/internal/observability"
	"github.com/contactbook/contactbook/internal/ratelimit"
	"github.com/contactbook/contactbook/internal/store"
	"github.com/contactbook/contactbook/internal/web"
)

// UserBackend is an opened user-record store.
type UserBackend struct {
	Repo  auth.UserRepository
	Check observability.Check
	Close func()
}

// LimiterBackend is an opened attempt store. Check is nil for the in-process store.
type LimiterBackend struct {
	Store ratelimit.Store
	Check *observability.Check
	Close func()
}

// AutoMigrator applies pending migrations at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// APIServer is the HTTP API server lifecycle.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer is the metrics and health server lifecycle.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps holds the factories used by serve. Nil fields use production defaults.
type ServeDeps struct {
	UserBackendFactory         func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*UserBackend, error)
	LimiterBackendFactory      func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*LimiterBackend, error)
	MigratorFactory            func(databaseURL string) (AutoMigrator, error)
	APIServerFactory           func(addr string, handler http.Handler, read, write time.Duration, logger *slog.Logger) APIServer
	ObservabilityServerFactory func(addr string, checks ...observability.Check) ObservabilityServer
	Hasher                     auth.PasswordHasher
	Logger                     *slog.Logger
	// Ready is called with the API address once every server is listening.
	Ready                      func(apiAddr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.UserBackendFactory == nil {
		out.UserBackendFactory = openUserBackend
	}
	if out.LimiterBackendFactory == nil {
		out.LimiterBackendFactory = openLimiterBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, read, write time.Duration, logger *slog.Logger) APIServer {
			return web.NewServer(addr, handler, read, write, logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checks ...observability.Check) ObservabilityServer {
			return observability.NewServer(addr, checks...)
		}
	}
	if out.Hasher == nil {
		out.Hasher = auth.NewArgon2idHasher()
	}
	return &out
}

// openUserBackend connects the configured store driver.
func openUserBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*UserBackend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		opts := store.DefaultConnectOptions()
		opts.Logger = logger
		pool, err := store.NewPool(ctx, cfg.Store.DatabaseURL, opts)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewUserRepository(pool)
		return &UserBackend{
			Repo:  repo,
			Check: observability.Check{Name: "postgres", Ping: repo.Ping},
			Close: pool.Close,
		}, nil

	case config.DriverMongo:
		client, err := authmongo.Connect(ctx, cfg.Store.MongoURI)
		if err != nil {
			return nil, err
		}
		repo := authmongo.NewUserRepository(client, cfg.Store.MongoDatabase)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &UserBackend{
			Repo:  repo,
			Check: observability.Check{Name: "mongo", Ping: repo.Ping},
			Close: func() {
				disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(disconnectCtx); err != nil {
					logger.Warn("mongo disconnect failed", "error", err)
				}
			},
		}, nil

	case config.DriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		repo := memory.NewUserRepository()
		return &UserBackend{
			Repo:  repo,
			Check: observability.Check{Name: "memory", Ping: repo.Ping},
			Close: func() {},
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Store.Driver).Errorf("unknown store driver")
}

// openLimiterBackend uses Redis when redis.url is set and the in-process
// store otherwise. The in-process store sweeps idle records until ctx ends.
func openLimiterBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*LimiterBackend, error) {
	if cfg.Redis.URL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		st := ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
		return &LimiterBackend{
			Store: st,
			Check: &observability.Check{Name: "redis", Ping: st.Ping},
			Close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close failed", "error", err)
				}
			},
		}, nil
	}

	st := ratelimit.NewMemoryStore()
	cleanupCtx, cancel := context.WithCancel(ctx)
	done := st.StartCleanup(cleanupCtx, cfg.CleanupInterval(), cfg.LimiterWindow())
	return &LimiterBackend{
		Store: st,
		Close: func() {
			cancel()
			<-done
		},
	}, nil
}
