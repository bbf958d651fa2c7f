// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/contactbook/contactbook/internal/auth"
	"github.com/contactbook/contactbook/internal/config"
	"github.com/contactbook/contactbook/internal/logging"
	"github.com/contactbook/contactbook/internal/observability"
	"github.com/contactbook/contactbook/internal/ratelimit"
	"github.com/contactbook/contactbook/internal/web"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the metrics and health listener.
Settings come from the config file, CONTACTBOOK_* environment variables
and the flags below, in increasing precedence.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps wires the stores, auth core and servers, then blocks until
// ctx ends, a signal arrives or a server fails.
func runServeWithDeps(ctx context.Context, cfg config.Config, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	deps = deps.withDefaults()

	logger := deps.Logger
	if logger == nil {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger = logging.SetDefault("contactbook", version, cfg.Log.Format, level)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Store.Driver == config.DriverPostgres && cfg.Store.AutoMigrate {
		if err := autoMigrate(cfg.Store.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	users, err := deps.UserBackendFactory(runCtx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open user store").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer users.Close()

	attempts, err := deps.LimiterBackendFactory(runCtx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open limiter store").Wrap(err)
	}
	defer attempts.Close()

	checks := []observability.Check{users.Check}
	if attempts.Check != nil {
		checks = append(checks, *attempts.Check)
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, checks...)
		metrics = obsServer.Metrics()
	}

	handler, err := buildAPI(cfg, users.Repo, attempts.Store, deps.Hasher, metrics, logger)
	if err != nil {
		return err
	}
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, cfg.ReadTimeout(), cfg.WriteTimeout(), logger)

	g, gctx := errgroup.WithContext(runCtx)

	if obsServer != nil {
		obsErr, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		defer stopServer(obsServer, "observability", logger)
		g.Go(func() error { return watchServer(gctx, obsErr, "observability") })
	}

	apiErr, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	defer stopServer(apiServer, "api", logger)
	g.Go(func() error { return watchServer(gctx, apiErr, "api") })

	logger.Info("contactbook started",
		"api_addr", apiServer.Addr(),
		"metrics_addr", cfg.Metrics.Addr,
		"store", cfg.Store.Driver,
		"redis", cfg.Redis.URL != "",
	)
	if deps.Ready != nil {
		deps.Ready(apiServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-gctx.Done():
	}
	cancel()

	return g.Wait()
}

// buildAPI assembles the auth core and the HTTP router around it.
func buildAPI(
	cfg config.Config,
	users auth.UserRepository,
	attempts ratelimit.Store,
	hasher auth.PasswordHasher,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (http.Handler, error) {
	tokens, err := auth.NewSignedTokenIssuer([]byte(cfg.Auth.TokenSecret), auth.WithTokenTTL(cfg.TokenTTL()))
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewUserSessionStore(users)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(attempts, ratelimit.Config{
		WindowDuration: cfg.LimiterWindow(),
		MaxAttempts:    cfg.Limiter.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	opts := []auth.ServiceOption{auth.WithLogger(logger)}
	routerOpts := web.Options{
		LimiterKey:     cfg.Limiter.Key,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Logger:         logger,
	}
	if metrics != nil {
		opts = append(opts, auth.WithMetrics(metrics))
		routerOpts.Metrics = metrics
	}

	svc, err := auth.NewService(users, sessions, hasher, tokens, limiter, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewGuard(tokens, sessions, logger)
	if err != nil {
		return nil, err
	}
	return web.NewRouter(svc, guard, routerOpts)
}

func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	logger.Info("applying pending migrations")
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	return nil
}

// watchServer returns the server's failure, or nil once ctx ends or the
// server stops cleanly.
func watchServer(ctx context.Context, errCh <-chan error, name string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		slog.Error("server error, triggering shutdown", "server", name, "error", err)
		return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
	case <-ctx.Done():
		return nil
	}
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(s stopper, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("failed to stop server", "server", name, "error", err)
	}
}
