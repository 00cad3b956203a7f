// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kb-labs/kb-plugin-host/internal/observability"
)

// shutdownGrace bounds how long serve-metrics waits for an in-flight scrape
// to finish before forcing the listener closed.
const shutdownGrace = 5 * time.Second

// newServeMetricsCmd runs a standalone Prometheus /metrics endpoint, for a
// host deployment that wants invocation counters scraped out-of-band from
// `kb run` (SPEC_FULL.md Domain Stack: "exposed over /metrics via an
// optional kb serve-metrics").
func newServeMetricsCmd() *cobra.Command {
	addr := ":9090"
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics and health probes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := observability.NewServer(addr, func() bool { return true })
			errCh, err := srv.Start()
			if err != nil {
				return fmt.Errorf("kb: start observability server: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("kb: observability server: %w", err)
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "address to serve /metrics and /healthz on")
	return cmd
}
