// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// newSchemaCmd exposes the manifest JSON Schema directly from the CLI
// (SPEC_FULL.md supplemented feature 2), rather than only as the
// cmd/gen-schema build-time generator.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the plugin.yaml JSON Schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := manifest.GenerateSchema()
			if err != nil {
				return fmt.Errorf("kb: generate schema: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
