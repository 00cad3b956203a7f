// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kb-labs/kb-plugin-host/internal/executor"
	"github.com/kb-labs/kb-plugin-host/internal/observability"
	"github.com/kb-labs/kb-plugin-host/internal/platform"
	"github.com/kb-labs/kb-plugin-host/internal/registry"
	"github.com/kb-labs/kb-plugin-host/internal/trace"
	"github.com/kb-labs/kb-plugin-host/pkg/errutil"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run <command> [flags]",
		Short:              "Run a registered plugin command inside the sandbox",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE:               runRun,
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.SandboxMode != "" {
		_ = os.Setenv("KB_SANDBOX_MODE", cfg.SandboxMode)
	}

	name, rest := args[0], args[1:]

	reg, out, discoverErrs := buildRegistry(cfg, logger)
	for _, e := range discoverErrs {
		logger.Warn("plugin discovery error", "error", e)
	}

	entry, ok := reg.GetWithType(name)
	if !ok || entry.Type != registry.TypePlugin {
		return fmt.Errorf("no registered command %q (discovered %d, skipped %d)", name, len(out.Registered), len(out.Skipped))
	}
	rc, ok := entry.Command.(*registry.RegisteredCommand)
	if !ok {
		return fmt.Errorf("kb: internal error: registry entry for %q is not a plugin command", name)
	}
	if !rc.Available {
		return newExitError(2, fmt.Errorf("command %q is unavailable: %s (%s)", name, rc.UnavailableReason, rc.Hint))
	}

	flagValues, argv, err := parseCommandFlags(name, rc.Command.Flags, rest)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	exec := executor.New(executor.Config{
		Services: platform.Services{},
		Logger:   logger,
		Metrics:  metrics,
	})

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("kb: getwd: %w", err)
	}

	t := trace.New()

	outcome, runErr := exec.Run(context.Background(), executor.Invocation{
		Command:   rc,
		Argv:      argv,
		Flags:     flagValues,
		Cwd:       cwd,
		RequestID: t.RequestID(),
	})
	if runErr != nil {
		errutil.LogError(logger, "run failed", runErr)
		return runErr
	}
	if outcome.Error != nil {
		return fmt.Errorf("%s: %s", outcome.Error.Code, outcome.Error.Message)
	}

	if outcome.Result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", outcome.Result)
	}
	if outcome.ExitCode != 0 {
		os.Exit(outcome.ExitCode)
	}
	return nil
}
