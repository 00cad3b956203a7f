// Package runtime implements the Sandbox Runtime API (spec §4.2): the
// bundle of policy-gated facades (fs, fetch, env, shell, artifacts, state,
// events, invoke, lifecycle) consumed by plugin handler code running
// inside the sandboxed child process.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/cleanup"
	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
)

// PermissionError is returned by every facade operation the Permission
// Policy denies (spec §4.2).
type PermissionError struct {
	Reason  string
	Details map[string]any
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

// Code reports the fixed error code every PermissionError carries, so
// callers using oops-style code inspection (pkg/errutil) see the §6
// taxonomy's PERMISSION_DENIED value.
func (e *PermissionError) Code() string {
	return "PERMISSION_DENIED"
}

// Caller is the narrow surface the runtime facades need from the IPC
// client to reach host-side platform services (spec §4.4). Satisfied by
// *ipc.Client; an interface here keeps the runtime package independently
// testable without a real socket.
type Caller interface {
	Call(ctx context.Context, adapter, method string, args []any, timeout time.Duration) (any, error)
}

// Bundle is the full Sandbox Runtime API given to one plugin handler
// invocation, with the invocation's Policy, cwd, and outdir already bound
// (spec §4.2: "each created with the Policy already bound").
type Bundle struct {
	FS        *FS
	Fetch     *Fetch
	Env       *Env
	Shell     *Shell
	Artifacts *Artifacts
	State     *State
	Events    *Events
	Invoke    *Invoke
	Lifecycle *Lifecycle
}

// Config bundles the per-invocation parameters every facade needs.
type Config struct {
	Policy   manifest.Policy
	Cwd      string
	Outdir   string
	PluginID string
	TenantID string
	Caller   Caller
	Cleanup  *cleanup.Stack
	// Guard governs whether a Policy denial in FS, Fetch, or Shell becomes a
	// hard *PermissionError or a logged-and-allowed pass-through (spec §4.3).
	// A nil Guard always enforces, matching pre-harden facade behavior.
	Guard *harden.Guard
}

// NewBundle constructs the full facade set for one invocation.
func NewBundle(cfg Config) *Bundle {
	if cfg.Outdir == "" {
		cfg.Outdir = defaultOutdir(cfg.Cwd)
	}

	return &Bundle{
		FS:        newFS(cfg.Policy, cfg.Cwd, cfg.Outdir, cfg.Guard),
		Fetch:     newFetch(cfg.Policy, cfg.Guard),
		Env:       newEnv(cfg.Policy),
		Shell:     newShell(cfg.Policy, cfg.Guard),
		Artifacts: newArtifacts(cfg.Outdir),
		State:     newState(cfg.Caller, cfg.PluginID, cfg.TenantID),
		Events:    newEvents(cfg.Caller, cfg.PluginID),
		Invoke:    newInvoke(cfg.Caller, cfg.Policy.Invoke),
		Lifecycle: newLifecycle(cfg.Cleanup),
	}
}

func defaultOutdir(cwd string) string {
	return filepath.Join(cwd, ".kb", "output")
}
