// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/contactbook/contactbook/internal/ratelimit"
)

// attemptResetter clears the attempt record of one limiter key.
type attemptResetter interface {
	Reset(ctx context.Context, key string) error
}

// resetterFactory is replaced in tests.
var resetterFactory = func(ctx context.Context, redisURL, prefix string) (attemptResetter, func(), error) {
	client, err := ratelimit.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisStore(client, prefix), func() { _ = client.Close() }, nil
}

// NewLimiterCmd creates the limiter command group.
func NewLimiterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limiter",
		Short: "Administer the shared login attempt store",
	}
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for the shared login attempt store")
	cmd.AddCommand(newLimiterResetCmd())
	return cmd
}

func newLimiterResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset KEY",
		Short: "Clear the failed-login counter for a key",
		Long: `Clear the attempt counter for a limiter key so the caller may log in again
before the window ends. Keys look like "ip:203.0.113.9" or "email:a@example.com".
Only the Redis store can be reset from outside the serving process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return oops.Code("CONFIG_INVALID").
					With("key", "redis.url").
					Errorf("redis.url is required; the in-memory store lives inside the server process")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			resetter, closeFn, err := resetterFactory(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := resetter.Reset(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Cleared login attempts for %s\n", args[0])
			return nil
		},
	}
}
