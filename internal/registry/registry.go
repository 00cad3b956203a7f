// Package registry implements the Command Registry & Router (spec §4.7):
// two disjoint indices (trusted system commands, registered plugin
// commands) with a non-negotiable invariant that a plugin can never shadow
// a system command, plus a separator-tolerant lookup used by the CLI
// router.
package registry

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// Type distinguishes what kind of entry a lookup resolved to.
type Type string

// Known lookup result types.
const (
	TypeSystem Type = "system"
	TypePlugin Type = "plugin"
	TypeGroup  Type = "group"
)

// SystemHandler is the in-process implementation of a trusted system
// command. The router invokes it directly, never through the sandbox.
type SystemHandler func(argv []string, flags map[string]any) error

// SystemCommand is a trusted, in-process command registered by the host
// itself (spec §4.7: "populated by trusted group registration").
type SystemCommand struct {
	Name    string
	Aliases []string
	Group   string
	Handler SystemHandler
	Hidden  bool
}

// RegisteredCommand is a plugin-contributed command as produced by the
// registration pipeline (internal/registration).
type RegisteredCommand struct {
	ID                string
	PluginID          string
	PluginVersion     string
	Manifest          *manifest.Manifest
	Command           manifest.Command
	PkgRoot           string
	Source            string
	Available         bool
	UnavailableReason string
	Hint              string
	Shadowed          bool
	Dispose           func() error `json:"-"`
}

// CommandGroup is a non-executable namespace entry (spec §4.7): a raw
// lookup of the group name returns the group itself; the router must not
// execute it.
type CommandGroup struct {
	Name     string
	Describe string
	Commands []string
}

// Entry is the result of GetWithType: the resolved command (one of
// *SystemCommand, *RegisteredCommand, or *CommandGroup) plus its Type.
type Entry struct {
	Command any
	Type    Type
}

// Registry holds the two disjoint command indices (spec §4.7).
type Registry struct {
	mu sync.RWMutex

	systemIndex map[string]*SystemCommand
	groups      map[string]*CommandGroup
	pluginIndex map[string]*RegisteredCommand
	// pluginNames maps every name a plugin command is reachable under
	// (id, aliases, whitespace-normalised id) back to its canonical id, so
	// shadowing and separator-tolerant lookup share one table.
	pluginNames map[string]string

	logger *slog.Logger
}

// New returns an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		systemIndex: make(map[string]*SystemCommand),
		groups:      make(map[string]*CommandGroup),
		pluginIndex: make(map[string]*RegisteredCommand),
		pluginNames: make(map[string]string),
		logger:      logger,
	}
}

// normalise makes space- and colon-separated names compare equal (spec
// §4.7: "Lookup tolerates both ':' and space separators").
func normalise(name string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(name, ":", " ")), " ")
}

// RegisterSystem adds a trusted system command under its name and aliases,
// plus the "<group> <name>" composite when cmd.Group is set (spec §4.7).
func (r *Registry) RegisterSystem(cmd SystemCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.systemIndex[normalise(cmd.Name)] = &cmd
	for _, alias := range cmd.Aliases {
		r.systemIndex[normalise(alias)] = &cmd
	}
	if cmd.Group != "" {
		r.systemIndex[normalise(cmd.Group+" "+cmd.Name)] = &cmd
	}
}

// RegisterGroup adds a non-executable CommandGroup entry.
func (r *Registry) RegisterGroup(g CommandGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[normalise(g.Name)] = &g
}

// RegisterPlugin adds rc under its id and every alias. When a name
// collides with an existing systemIndex entry, the plugin entry is stored
// but marked shadowed and is never returned by GetWithType (spec §4.7,
// non-negotiable invariant).
func (r *Registry) RegisterPlugin(rc RegisteredCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{rc.ID}, rc.Command.Aliases...)
	for _, name := range names {
		key := normalise(name)
		if _, shadowedBySystem := r.systemIndex[key]; shadowedBySystem {
			rc.Shadowed = true
			r.logger.Warn("plugin command shadowed by system command", "name", name, "plugin", rc.PluginID)
		}
	}

	r.pluginIndex[rc.ID] = &rc
	for _, name := range names {
		r.pluginNames[normalise(name)] = rc.ID
	}
}

// GetWithType resolves name against both indices, tolerant of ':' vs ' '
// separators (spec §4.7). System commands always win; a shadowed plugin
// entry is never returned.
func (r *Registry) GetWithType(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := normalise(name)

	if sc, ok := r.systemIndex[key]; ok {
		return Entry{Command: sc, Type: TypeSystem}, true
	}

	if g, ok := r.groups[key]; ok {
		return Entry{Command: g, Type: TypeGroup}, true
	}

	if id, ok := r.pluginNames[key]; ok {
		rc := r.pluginIndex[id]
		if rc.Shadowed {
			return Entry{}, false
		}
		return Entry{Command: rc, Type: TypePlugin}, true
	}

	return Entry{}, false
}

// SystemCommands returns every registered system command, for help/list
// output.
func (r *Registry) SystemCommands() []*SystemCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*SystemCommand]bool)
	out := make([]*SystemCommand, 0, len(r.systemIndex))
	for _, sc := range r.systemIndex {
		if seen[sc] {
			continue
		}
		seen[sc] = true
		out = append(out, sc)
	}
	return out
}

// PluginCommands returns every registered plugin command (including
// shadowed ones), for diagnostics (e.g. `kb doctor`).
func (r *Registry) PluginCommands() []*RegisteredCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*RegisteredCommand, 0, len(r.pluginIndex))
	for _, rc := range r.pluginIndex {
		out = append(out, rc)
	}
	return out
}
