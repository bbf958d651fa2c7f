// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/contactbook/contactbook/internal/config"
	"github.com/contactbook/contactbook/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the contactbook CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contactbook",
		Short: "Contactbook - account and session service",
		Long: `Contactbook serves account signup, login and single-session
bearer authentication over HTTP, with throttled login attempts.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (default $XDG_CONFIG_HOME/contactbook/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewLimiterCmd())

	return cmd
}

// configPath is the --config value, or the XDG config file when it exists.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigFile()
}

// loadConfig reads the layered configuration for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configPath(), cmd.Flags())
}
