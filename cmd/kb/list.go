// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	jsonOutput := false
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every registered plugin command",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			reg, _, discoverErrs := buildRegistry(cfg, logger)
			for _, e := range discoverErrs {
				logger.Warn("plugin discovery error", "error", e)
			}

			commands := reg.PluginCommands()
			sort.Slice(commands, func(i, j int) bool { return commands[i].ID < commands[j].ID })

			if jsonOutput {
				data, err := json.MarshalIndent(commands, "", "  ")
				if err != nil {
					return fmt.Errorf("kb: marshal command list: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPLUGIN\tAVAILABLE\tSHADOWED\tDESCRIBE")
			for _, c := range commands {
				fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", c.ID, c.PluginID, c.Available, c.Shadowed, c.Command.Describe)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
