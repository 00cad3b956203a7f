// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/registration"
)

// discoverManifests walks each configured search path for plugin.yaml
// files. Producing a DiscoveryResult is explicitly left to the host by the
// Registration Pipeline's own contract ("specified only by the
// DiscoveryResult it must produce"); this is kb's filesystem-walking
// implementation of that contract. Every manifest found is reported as a
// SourceWorkspace result: kb has no linked/node_modules plugin convention
// of its own.
func discoverManifests(paths []string) ([]registration.DiscoveryResult, []error) {
	var results []registration.DiscoveryResult
	var errs []error

	for _, root := range paths {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			if d.IsDir() || d.Name() != "plugin.yaml" {
				return nil
			}

			data, readErr := os.ReadFile(path)
			if readErr != nil {
				errs = append(errs, fmt.Errorf("read %s: %w", path, readErr))
				return nil
			}
			m, parseErr := manifest.Parse(data)
			if parseErr != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", path, parseErr))
				return nil
			}

			pkgRoot := filepath.Dir(path)
			results = append(results, registration.DiscoveryResult{
				Source:       registration.SourceWorkspace,
				PackageName:  filepath.Base(pkgRoot),
				ManifestPath: path,
				PkgRoot:      pkgRoot,
				Manifests:    []*manifest.Manifest{m},
			})
			return nil
		})
		if walkErr != nil {
			errs = append(errs, fmt.Errorf("walk %s: %w", root, walkErr))
		}
	}

	return results, errs
}
