package registration

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/registry"
)

var aliasPattern = regexp.MustCompile(`^[a-z0-9-:]+$`)

// SkippedEntry records a manifest or command dropped before registration,
// with the reason (spec §4.8 stage 1/4).
type SkippedEntry struct {
	ID     string
	Source Source
	Reason string
}

// ErrorEntry records a hard registration failure (spec §4.8 stage 5).
type ErrorEntry struct {
	ID     string
	Reason string
}

// Output is the Registration Pipeline's result (spec §4.8).
type Output struct {
	Registered []registry.RegisteredCommand
	Skipped    []SkippedEntry
	Collisions int
	Errors     []ErrorEntry
}

// Config supplies the pipeline's pluggable concerns: dependency
// resolution, monorepo detection, and manifest lifecycle hooks. Every
// field is optional; nil means "always succeeds" / "no hooks".
type Config struct {
	ResolveDependency DependencyResolver
	DetectMonorepo    MonorepoDetector
	ResolveHooks      HookResolver
	Cwd               string
	Logger            *slog.Logger
}

// Pipeline runs the Registration Pipeline over a sequence of discoveries.
type Pipeline struct {
	cfg Config
}

// New returns a Pipeline configured with cfg.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

type candidate struct {
	id          string
	aliases     []string
	source      Source
	packageName string
	pkgRoot     string
	manifest    *manifest.Manifest
	command     manifest.Command
	available   bool
	unavailable string
	hint        string
	shadowed    bool
}

// Run executes all seven stages (spec §4.8) over results and returns the
// combined Output.
func (p *Pipeline) Run(results []DiscoveryResult) Output {
	out := Output{}

	// Stage 1: preflight validation.
	valid := p.preflight(results, &out)

	// Stage 2: source ordering.
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].source.priority() > valid[j].source.priority()
	})

	// Stage 3: ID normalisation, producing one candidate per command.
	candidates := p.normalise(valid, &out)

	// Stage 4: availability check.
	p.checkAvailability(candidates)

	// Stage 5: collision and shadowing resolution.
	kept := p.resolveCollisions(candidates, &out)

	// Stage 6: lifecycle hooks, stage 7: final assembly.
	for _, c := range kept {
		rc := registry.RegisteredCommand{
			ID:                c.id,
			PluginID:          c.manifest.ID,
			PluginVersion:     c.manifest.Version,
			Manifest:          c.manifest,
			Command:           c.command,
			PkgRoot:           c.pkgRoot,
			Source:            string(c.source),
			Available:         c.available,
			UnavailableReason: c.unavailable,
			Hint:              c.hint,
			Shadowed:          c.shadowed,
		}
		// Expose the stage-3 aliases: invalid ones dropped, whitespace alias added.
		rc.Command.Aliases = c.aliases

		if p.cfg.ResolveHooks != nil {
			hooks := p.cfg.ResolveHooks(c.pkgRoot, c.manifest)
			p.runHooks(hooks, c, &rc)
		}

		out.Registered = append(out.Registered, rc)
	}

	return out
}

func (p *Pipeline) preflight(results []DiscoveryResult, out *Output) []DiscoveryResult {
	valid := make([]DiscoveryResult, 0, len(results))
	for _, r := range results {
		kept := make([]*manifest.Manifest, 0, len(r.Manifests))
		for _, m := range r.Manifests {
			if err := m.Validate(); err != nil {
				out.Skipped = append(out.Skipped, SkippedEntry{ID: m.ID, Source: r.Source, Reason: err.Error()})
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			continue
		}
		r.Manifests = kept
		valid = append(valid, r)
	}
	return valid
}

func (p *Pipeline) normalise(results []DiscoveryResult, out *Output) []candidate {
	var candidates []candidate
	for _, r := range results {
		for _, m := range r.Manifests {
			for _, cmd := range m.CLI.Commands {
				aliases := make([]string, 0, len(cmd.Aliases)+1)
				for _, a := range cmd.Aliases {
					if !aliasPattern.MatchString(a) {
						out.Skipped = append(out.Skipped, SkippedEntry{
							ID: cmd.ID, Source: r.Source,
							Reason: fmt.Sprintf("invalid alias %q dropped", a),
						})
						continue
					}
					aliases = append(aliases, a)
				}
				if strings.Contains(cmd.ID, ":") {
					whitespace := strings.ReplaceAll(cmd.ID, ":", " ")
					aliases = append(aliases, whitespace)
				}

				candidates = append(candidates, candidate{
					id:          cmd.ID,
					aliases:     aliases,
					source:      r.Source,
					packageName: r.PackageName,
					pkgRoot:     r.PkgRoot,
					manifest:    m,
					command:     cmd,
					available:   true,
				})
			}
		}
	}
	return candidates
}

func (p *Pipeline) checkAvailability(candidates []candidate) {
	if p.cfg.ResolveDependency == nil {
		return
	}

	relaxed := p.cfg.DetectMonorepo != nil && p.cfg.DetectMonorepo(p.cfg.Cwd)

	for i := range candidates {
		c := &candidates[i]
		for _, dep := range c.manifest.Requires {
			ok, hint := p.cfg.ResolveDependency(dep, p.cfg.Cwd, c.pkgRoot)
			if ok {
				continue
			}
			if relaxed {
				continue
			}
			c.available = false
			c.unavailable = fmt.Sprintf("missing required package %q", dep)
			c.hint = hint
			break
		}
	}
}

// resolveCollisions implements stage 5 (spec §4.8): ids and aliases share
// one namespace, so an alias colliding with another command's id (or
// alias) is resolved the same way as two identical ids. Same name across
// two workspace sources is a hard error; same name across different-
// priority sources resolves to the higher-priority winner with the loser
// marked shadowed.
func (p *Pipeline) resolveCollisions(candidates []candidate, out *Output) []candidate {
	names := make(map[string]int) // id or alias -> index into kept
	var kept []candidate
	dropped := make(map[int]bool)

	for _, c := range candidates {
		existingIdx, collides := firstNameCollision(c, names)
		if !collides {
			idx := len(kept)
			kept = append(kept, c)
			registerNames(names, c, idx)
			continue
		}

		existing := kept[existingIdx]
		if existing.source == SourceWorkspace && c.source == SourceWorkspace {
			out.Errors = append(out.Errors, ErrorEntry{ID: c.id, Reason: "duplicate id or alias across two workspace sources"})
			out.Collisions++
			dropped[existingIdx] = true
			continue
		}

		out.Collisions++
		if c.source.priority() > existing.source.priority() {
			// New candidate outranks the kept one: the kept one becomes the
			// shadowed loser, the new one takes its slot as the winner.
			existing.shadowed = true
			kept[existingIdx] = c
			kept = append(kept, existing)
			registerNames(names, c, existingIdx)
			p.cfg.Logger.Warn("command shadowed by higher-priority source", "id", c.id, "source", existing.source)
		} else {
			c.shadowed = true
			idx := len(kept)
			kept = append(kept, c)
			registerNames(names, c, idx)
			p.cfg.Logger.Warn("command shadowed by higher-priority source", "id", c.id, "source", c.source)
		}
	}

	result := make([]candidate, 0, len(kept))
	for i, c := range kept {
		if dropped[i] {
			continue
		}
		result = append(result, c)
	}
	return result
}

// firstNameCollision reports whether any of c's id or aliases already
// names a kept candidate, returning that candidate's index. An alias
// colliding with an existing id (or vice versa) is resolved exactly like
// an id-vs-id collision (spec §4.8 stage 5).
func firstNameCollision(c candidate, names map[string]int) (int, bool) {
	if idx, ok := names[c.id]; ok {
		return idx, true
	}
	for _, a := range c.aliases {
		if idx, ok := names[a]; ok {
			return idx, true
		}
	}
	return 0, false
}

// registerNames records c's id and aliases as resolving to idx.
func registerNames(names map[string]int, c candidate, idx int) {
	names[c.id] = idx
	for _, a := range c.aliases {
		names[a] = idx
	}
}

func (p *Pipeline) runHooks(hooks Hooks, c candidate, rc *registry.RegisteredCommand) {
	if hooks.Init != nil {
		if err := hooks.Init(p.cfg.Cwd, c.packageName, c.manifest); err != nil {
			p.cfg.Logger.Debug("manifest init hook failed", "plugin", c.manifest.ID, "error", err)
		}
	}
	if hooks.Register != nil {
		if err := hooks.Register(p.cfg.Cwd, c.packageName, c.command); err != nil {
			p.cfg.Logger.Debug("manifest register hook failed", "plugin", c.manifest.ID, "error", err)
		}
	}
	if hooks.Dispose != nil {
		rc.Dispose = hooks.Dispose
	}
}
