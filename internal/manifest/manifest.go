// Package manifest parses and validates plugin.yaml manifests and the
// permission policies they declare.
package manifest

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// idPattern matches manifest.INV: ^[a-z0-9-]+(:[a-z0-9-]+)*$
var idPattern = regexp.MustCompile(`^[a-z0-9-]+(:[a-z0-9-]+)*$`)

// aliasPattern matches command and alias identifiers: ^[a-z0-9-:]+$
var aliasPattern = regexp.MustCompile(`^[a-z0-9-:]+$`)

// flagAliasPattern matches a single lowercase letter short flag.
var flagAliasPattern = regexp.MustCompile(`^[a-z]$`)

// SupportedManifestVersion is the only manifestVersion this host accepts.
const SupportedManifestVersion = "1.0"

// FlagType enumerates the accepted command flag value types.
type FlagType string

// Supported flag value types.
const (
	FlagString FlagType = "string"
	FlagBool   FlagType = "boolean"
	FlagNumber FlagType = "number"
	FlagArray  FlagType = "array"
)

// Flag describes a single CLI flag declared by a plugin command.
type Flag struct {
	Name    string   `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Alias   string   `yaml:"alias,omitempty" json:"alias,omitempty"`
	Type    FlagType `yaml:"type" json:"type" jsonschema:"required,enum=string,enum=boolean,enum=number,enum=array"`
	Choices []string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Default any      `yaml:"default,omitempty" json:"default,omitempty"`
	Describe string  `yaml:"describe,omitempty" json:"describe,omitempty"`
}

// Command describes a single CLI command contributed by a plugin.
type Command struct {
	ID          string   `yaml:"id" json:"id" jsonschema:"required,minLength=1"`
	HandlerPath string   `yaml:"handlerPath" json:"handlerPath" jsonschema:"required,minLength=1"`
	Flags       []Flag   `yaml:"flags,omitempty" json:"flags,omitempty"`
	Describe    string   `yaml:"describe,omitempty" json:"describe,omitempty"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	// Permissions overrides the manifest-level Permissions for this command
	// alone; the Host Executor merges command-level over manifest-level,
	// command winning on conflict (spec §4.9 step 2).
	Permissions *Policy `yaml:"permissions,omitempty" json:"permissions,omitempty"`
}

// Job describes an optional scheduled/background job contributed by a
// plugin. The scheduler subsystem itself is out of scope (spec §1); this
// only carries the declaration through manifest validation.
type Job struct {
	ID          string `yaml:"id" json:"id" jsonschema:"required,minLength=1"`
	HandlerPath string `yaml:"handlerPath" json:"handlerPath" jsonschema:"required,minLength=1"`
	Schedule    string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// Engine declares compatibility constraints against the host.
type Engine struct {
	KBCli string `yaml:"kbCli,omitempty" json:"kbCli,omitempty"`
}

// Display holds presentation metadata that is not part of the core contract.
type Display struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Manifest is the parsed, validated form of a plugin.yaml file (spec §3).
type Manifest struct {
	ID              string   `yaml:"id" json:"id" jsonschema:"required,minLength=1,maxLength=128,pattern=^[a-z0-9-]+(:[a-z0-9-]+)*$"`
	ManifestVersion string   `yaml:"manifestVersion" json:"manifestVersion" jsonschema:"required"`
	Version         string   `yaml:"version" json:"version" jsonschema:"required,minLength=1"`
	Display         Display  `yaml:"display,omitempty" json:"display,omitempty"`
	Permissions     Policy   `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	CLI             struct {
		Commands []Command `yaml:"commands" json:"commands"`
	} `yaml:"cli" json:"cli"`
	Jobs          []Job    `yaml:"jobs,omitempty" json:"jobs,omitempty"`
	ConfigSection string   `yaml:"configSection,omitempty" json:"configSection,omitempty"`
	Engine        Engine   `yaml:"engine,omitempty" json:"engine,omitempty"`
	// Requires lists package ids the Registration Pipeline's availability
	// check (spec §4.8 stage 4) must resolve before the command is usable.
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Quotas bounds resource usage for one plugin invocation.
type Quotas struct {
	TimeoutMs int64 `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
	MemoryMb  int64 `yaml:"memoryMb,omitempty" json:"memoryMb,omitempty"`
	CPUMs     int64 `yaml:"cpuMs,omitempty" json:"cpuMs,omitempty"`
}

// DefaultTimeoutMs is used when a manifest does not declare quotas.timeoutMs.
const DefaultTimeoutMs = 30_000

// EffectiveTimeoutMs returns the configured timeout or the default.
func (q Quotas) EffectiveTimeoutMs() int64 {
	if q.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return q.TimeoutMs
}

// FSPolicy declares filesystem access grants.
type FSPolicy struct {
	Read  []string `yaml:"read,omitempty" json:"read,omitempty"`
	Write []string `yaml:"write,omitempty" json:"write,omitempty"`
}

// NetworkPolicy declares outbound network access grants.
type NetworkPolicy struct {
	Fetch []string `yaml:"fetch,omitempty" json:"fetch,omitempty"`
}

// EnvPolicy declares process environment read grants.
type EnvPolicy struct {
	Read []string `yaml:"read,omitempty" json:"read,omitempty"`
}

// ShellPolicy declares whether and which shell commands may be executed.
type ShellPolicy struct {
	Allowed  bool     `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Commands []string `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// InvokePolicy declares whether and which other plugins may be invoked.
type InvokePolicy struct {
	Allowed bool     `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Plugins []string `yaml:"plugins,omitempty" json:"plugins,omitempty"`
}

// Policy is the full permission set attached to a manifest (and optionally
// overridden per command). See spec §3 and §4.1.
type Policy struct {
	FS      FSPolicy      `yaml:"fs,omitempty" json:"fs,omitempty"`
	Network NetworkPolicy `yaml:"network,omitempty" json:"network,omitempty"`
	Env     EnvPolicy     `yaml:"env,omitempty" json:"env,omitempty"`
	Shell   ShellPolicy   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Invoke  InvokePolicy  `yaml:"invoke,omitempty" json:"invoke,omitempty"`
	Quotas  Quotas        `yaml:"quotas,omitempty" json:"quotas,omitempty"`
}

// Merge returns a new Policy with non-empty fields of override replacing the
// corresponding fields of p, matching spec §4.9 step 2 ("command-level wins
// on conflict"). Slice fields are replaced wholesale, not concatenated: a
// command that narrows fs.read to an empty list must not silently inherit
// the manifest's broader grant.
func (p Policy) Merge(override *Policy) Policy {
	if override == nil {
		return p
	}
	merged := p
	if override.FS.Read != nil {
		merged.FS.Read = override.FS.Read
	}
	if override.FS.Write != nil {
		merged.FS.Write = override.FS.Write
	}
	if override.Network.Fetch != nil {
		merged.Network.Fetch = override.Network.Fetch
	}
	if override.Env.Read != nil {
		merged.Env.Read = override.Env.Read
	}
	if override.Shell.Allowed {
		merged.Shell.Allowed = true
	}
	if override.Shell.Commands != nil {
		merged.Shell.Commands = override.Shell.Commands
	}
	if override.Invoke.Allowed {
		merged.Invoke.Allowed = true
	}
	if override.Invoke.Plugins != nil {
		merged.Invoke.Plugins = override.Invoke.Plugins
	}
	if override.Quotas.TimeoutMs != 0 {
		merged.Quotas.TimeoutMs = override.Quotas.TimeoutMs
	}
	if override.Quotas.MemoryMb != 0 {
		merged.Quotas.MemoryMb = override.Quotas.MemoryMb
	}
	if override.Quotas.CPUMs != 0 {
		merged.Quotas.CPUMs = override.Quotas.CPUMs
	}
	return merged
}

// Parse parses and structurally validates a plugin.yaml manifest.
func Parse(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks the manifest.INV constraints from spec §3.
func (m *Manifest) Validate() error {
	if m.ID == "" || !idPattern.MatchString(m.ID) {
		return fmt.Errorf("id %q must match %s", m.ID, idPattern.String())
	}

	if m.ManifestVersion != SupportedManifestVersion {
		return fmt.Errorf("manifestVersion must be %q, got %q", SupportedManifestVersion, m.ManifestVersion)
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q must be valid semver: %w", m.Version, err)
	}

	if m.Engine.KBCli != "" {
		if _, err := semver.NewConstraint(m.Engine.KBCli); err != nil {
			return fmt.Errorf("engine.kbCli %q must be a valid version constraint: %w", m.Engine.KBCli, err)
		}
	}

	seen := make(map[string]bool, len(m.CLI.Commands))
	for i, cmd := range m.CLI.Commands {
		if cmd.ID == "" {
			return fmt.Errorf("cli.commands[%d].id is required", i)
		}
		if seen[cmd.ID] {
			return fmt.Errorf("cli.commands: duplicate id %q", cmd.ID)
		}
		seen[cmd.ID] = true

		if cmd.HandlerPath == "" {
			return fmt.Errorf("cli.commands[%d].handlerPath is required", i)
		}

		for _, alias := range cmd.Aliases {
			if !aliasPattern.MatchString(alias) {
				return fmt.Errorf("cli.commands[%d]: alias %q must match %s", i, alias, aliasPattern.String())
			}
		}

		for j, f := range cmd.Flags {
			if err := f.validate(); err != nil {
				return fmt.Errorf("cli.commands[%d].flags[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

// validate checks an individual flag declaration: alias must be a single
// lowercase letter, choices are only meaningful for string flags, and the
// default value's dynamic type must match the declared type.
func (f Flag) validate() error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if f.Alias != "" && !flagAliasPattern.MatchString(f.Alias) {
		return fmt.Errorf("alias %q must be a single lowercase letter", f.Alias)
	}

	switch f.Type {
	case FlagString, FlagBool, FlagNumber, FlagArray:
	default:
		return fmt.Errorf("type must be one of string|boolean|number|array, got %q", f.Type)
	}

	if len(f.Choices) > 0 && f.Type != FlagString {
		return fmt.Errorf("choices is only valid for string flags")
	}

	if f.Default != nil {
		if err := checkDefaultType(f.Type, f.Default); err != nil {
			return err
		}
	}

	return nil
}

func checkDefaultType(t FlagType, v any) error {
	switch t {
	case FlagString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("default value type does not match declared type %q", t)
		}
	case FlagBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("default value type does not match declared type %q", t)
		}
	case FlagNumber:
		switch v.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("default value type does not match declared type %q", t)
		}
	case FlagArray:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("default value type does not match declared type %q", t)
		}
	}
	return nil
}
