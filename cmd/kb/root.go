// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kb-labs/kb-plugin-host/internal/logging"
)

// Global flags shared by every subcommand.
var (
	configFile  string
	pluginPaths []string
	sandboxMode string
	logLevel    string
)

// NewRootCmd builds the kb CLI's root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kb",
		Short:         "kb runs sandboxed plugin commands",
		Long:          `kb discovers plugin.yaml manifests and runs the commands they contribute inside a permission-gated sandbox.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to kb.yaml")
	cmd.PersistentFlags().StringSliceVar(&pluginPaths, "pluginPaths", nil, "directories to search for plugin.yaml manifests (repeatable)")
	cmd.PersistentFlags().StringVar(&sandboxMode, "sandboxMode", "", "harden mode: enforce, compat, or warn (overrides KB_SANDBOX_MODE)")
	cmd.PersistentFlags().StringVar(&logLevel, "logLevel", "", "log level: debug, info, warn, or error")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newServeMetricsCmd())

	return cmd
}

// newLogger builds the process logger, grounded on internal/logging's
// trace-aware handler rather than a bare slog.New.
func newLogger(_ hostConfig) *slog.Logger {
	return logging.Setup("kb", version, "text", nil)
}
