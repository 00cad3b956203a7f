// Package descriptor implements the Descriptor entity (spec §3): the
// frozen, host-owned, JSON-serialisable input to one plugin invocation.
package descriptor

import (
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// Host identifies the kind of caller that triggered an invocation.
type Host string

// Known Host values.
const (
	HostCLI  Host = "cli"
	HostJob  Host = "job"
	HostTest Host = "test"
)

// Descriptor is the frozen input to one plugin invocation (spec §3). It is
// constructed once by the host (internal/executor) and passed to the child
// exactly once at startup, over the "execute" control message (spec §6).
type Descriptor struct {
	Host            Host              `json:"host"`
	ParentRequestID string            `json:"parentRequestId,omitempty"`
	PluginID        string            `json:"pluginId"`
	PluginVersion   string            `json:"pluginVersion"`
	TenantID        string            `json:"tenantId,omitempty"`
	Cwd             string            `json:"cwd"`
	Outdir          string            `json:"outdir,omitempty"`
	Permissions     manifest.Policy   `json:"permissions"`
	Config          map[string]any    `json:"config,omitempty"`
	HostContext     map[string]string `json:"hostContext,omitempty"`
}
