// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"log/slog"

	"github.com/kb-labs/kb-plugin-host/internal/registration"
	"github.com/kb-labs/kb-plugin-host/internal/registry"
)

// buildRegistry runs discovery + the Registration Pipeline over cfg's
// search paths and returns a populated Registry plus the pipeline's
// Output, for callers that want to report skipped/collisions/errors
// (kb doctor) alongside the routable registry (kb run, kb list).
func buildRegistry(cfg hostConfig, logger *slog.Logger) (*registry.Registry, registration.Output, []error) {
	discoveries, discoverErrs := discoverManifests(cfg.PluginPaths)

	pipeline := registration.New(registration.Config{
		Logger: logger,
	})
	out := pipeline.Run(discoveries)

	reg := registry.New(logger)
	for _, rc := range out.Registered {
		reg.RegisterPlugin(rc)
	}

	return reg, out, discoverErrs
}
