// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// parseCommandFlags binds args against cmd's manifest-declared flags and
// returns the flattened flag values plus the remaining positional argv
// (spec §4.9: the Host Executor hands both to the Descriptor/Input).
func parseCommandFlags(name string, defs []manifest.Flag, args []string) (map[string]any, []string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	for _, f := range defs {
		describe := f.Describe
		switch f.Type {
		case manifest.FlagString:
			def, _ := f.Default.(string)
			if f.Alias != "" {
				fs.StringP(f.Name, f.Alias, def, describe)
			} else {
				fs.String(f.Name, def, describe)
			}
		case manifest.FlagBool:
			def, _ := f.Default.(bool)
			if f.Alias != "" {
				fs.BoolP(f.Name, f.Alias, def, describe)
			} else {
				fs.Bool(f.Name, def, describe)
			}
		case manifest.FlagNumber:
			var def float64
			switch v := f.Default.(type) {
			case float64:
				def = v
			case int:
				def = float64(v)
			}
			if f.Alias != "" {
				fs.Float64P(f.Name, f.Alias, def, describe)
			} else {
				fs.Float64(f.Name, def, describe)
			}
		case manifest.FlagArray:
			def, _ := f.Default.([]string)
			if f.Alias != "" {
				fs.StringSliceP(f.Name, f.Alias, def, describe)
			} else {
				fs.StringSlice(f.Name, def, describe)
			}
		default:
			return nil, nil, fmt.Errorf("kb: command %q declares unknown flag type %q", name, f.Type)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("kb: parse flags for %q: %w", name, err)
	}

	flags := make(map[string]any, len(defs))
	for _, f := range defs {
		switch f.Type {
		case manifest.FlagString:
			v, _ := fs.GetString(f.Name)
			flags[f.Name] = v
		case manifest.FlagBool:
			v, _ := fs.GetBool(f.Name)
			flags[f.Name] = v
		case manifest.FlagNumber:
			v, _ := fs.GetFloat64(f.Name)
			flags[f.Name] = v
		case manifest.FlagArray:
			v, _ := fs.GetStringSlice(f.Name)
			flags[f.Name] = v
		}
	}

	return flags, fs.Args(), nil
}
