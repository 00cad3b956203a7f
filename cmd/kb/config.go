// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"

	"github.com/kb-labs/kb-plugin-host/internal/harden"
)

// hostConfig is the host's own configuration: where to look for plugins and
// what sandbox defaults to apply, loaded from an optional kb.yaml overlaid
// by persistent flags (spec §6 env vars are read directly by the harden and
// kbsdk layers, not duplicated here).
type hostConfig struct {
	PluginPaths []string `koanf:"pluginPaths"`
	SandboxMode string   `koanf:"sandboxMode"`
	LogLevel    string   `koanf:"logLevel"`
}

// loadConfig layers an optional config file under cmd's persistent flags,
// the way koanf's own examples overlay providers: file first, flags last so
// a flag always wins.
func loadConfig(cmd *cobra.Command) (hostConfig, error) {
	cfg := hostConfig{SandboxMode: string(harden.Enforce), LogLevel: "info"}
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("kb: load config %s: %w", configFile, err)
		}
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return cfg, fmt.Errorf("kb: load flags: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("kb: unmarshal config: %w", err)
	}

	if len(cfg.PluginPaths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return cfg, fmt.Errorf("kb: getwd: %w", err)
		}
		cfg.PluginPaths = []string{cwd}
	}

	return cfg, nil
}
