// Package registration implements the Registration Pipeline (spec §4.8):
// turns a sequence of DiscoveryResults into the registry's RegisteredCommand
// set, resolving source-priority ordering, id/alias normalisation,
// dependency availability, and collision/shadowing, then runs optional
// manifest lifecycle hooks.
package registration

import "github.com/kb-labs/kb-plugin-host/internal/manifest"

// Source identifies where a DiscoveryResult's manifests were found (spec
// §4.7 INV, §4.8 stage 2).
type Source string

// Known sources, in descending priority order.
const (
	SourceBuiltin     Source = "builtin"
	SourceWorkspace   Source = "workspace"
	SourceLinked      Source = "linked"
	SourceNodeModules Source = "node_modules"
)

// priority returns the source's registration priority; higher wins on
// collision (spec §4.8 stage 2: "builtin(4) > workspace(3) > linked(2) >
// node_modules(1)").
func (s Source) priority() int {
	switch s {
	case SourceBuiltin:
		return 4
	case SourceWorkspace:
		return 3
	case SourceLinked:
		return 2
	case SourceNodeModules:
		return 1
	default:
		return 0
	}
}

// DiscoveryResult is one manifest-discovery unit, produced by whatever
// walks the filesystem for plugin.yaml files (out of scope here; spec §1
// "specified only by the DiscoveryResult it must produce").
type DiscoveryResult struct {
	Source       Source
	PackageName  string
	ManifestPath string
	PkgRoot      string
	Manifests    []*manifest.Manifest
}

// Hooks are the optional manifest lifecycle callbacks (spec §4.8 stage 6).
// A manifest module that exposes neither is registered with both nil.
type Hooks struct {
	Init     func(cwd, packageName string, m *manifest.Manifest) error
	Register func(cwd, packageName string, cmd manifest.Command) error
	Dispose  func() error
}

// HookResolver looks up the optional lifecycle hooks for one manifest,
// given its source location. Concrete module loading (dynamic import of a
// plugin's registration code) is out of scope here; a host wires in
// whatever resolver fits its plugin-packaging format.
type HookResolver func(pkgRoot string, m *manifest.Manifest) Hooks

// DependencyResolver attempts to resolve one required package id from the
// ordered search path (cwd, plugin pkgRoot, monorepo root, binary root),
// returning ok=false and a hint when it cannot be found (spec §4.8 stage 4).
type DependencyResolver func(packageID, cwd, pkgRoot string) (ok bool, hint string)

// MonorepoDetector reports whether cwd sits inside a detected monorepo
// (presence of a workspace declaration file at some ancestor), which
// relaxes the availability check (spec §4.8 stage 4).
type MonorepoDetector func(cwd string) bool
