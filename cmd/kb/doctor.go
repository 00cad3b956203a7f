// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDoctorCmd runs the Registration Pipeline and reports everything it
// skipped, collided on, or failed, grounded on the teacher's
// Manager.LoadAll graceful-degradation logging pattern generalized to
// "report what discovery found" (SPEC_FULL.md supplemented feature 1).
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose plugin discovery and registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			reg, out, discoverErrs := buildRegistry(cfg, logger)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "registered: %d\n", len(out.Registered))
			fmt.Fprintf(w, "skipped:    %d\n", len(out.Skipped))
			fmt.Fprintf(w, "collisions: %d\n", out.Collisions)
			fmt.Fprintf(w, "errors:     %d\n", len(out.Errors))
			fmt.Fprintf(w, "discovery errors: %d\n", len(discoverErrs))

			for _, s := range out.Skipped {
				fmt.Fprintf(w, "  skipped %s (%s): %s\n", s.ID, s.Source, s.Reason)
			}
			for _, e := range out.Errors {
				fmt.Fprintf(w, "  error %s: %s\n", e.ID, e.Reason)
			}
			for _, e := range discoverErrs {
				fmt.Fprintf(w, "  discovery: %s\n", e)
			}

			shadowed := 0
			for _, c := range reg.PluginCommands() {
				if c.Shadowed {
					shadowed++
				}
			}
			fmt.Fprintf(w, "shadowed:   %d\n", shadowed)

			if len(out.Errors) > 0 {
				return fmt.Errorf("kb doctor: %d registration error(s)", len(out.Errors))
			}
			return nil
		},
	}
}
