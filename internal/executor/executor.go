// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

// Package executor implements the Host Executor (spec §4.9): for one
// resolved plugin command, it prepares a Descriptor, opens a fresh
// per-invocation IPC socket, spawns the Sandbox Bootstrap child (wiring the
// control channel over a dedicated pipe pair rather than stdio, so the
// child's stdout/stderr stream straight through for UI output and logs),
// drives the INIT→SPAWNED→READY→EXECUTING→(RESULT|ERROR|ABORTED)→CLOSED
// state machine, and enforces the quota timer.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kb-labs/kb-plugin-host/internal/descriptor"
	"github.com/kb-labs/kb-plugin-host/internal/ipc"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/observability"
	"github.com/kb-labs/kb-plugin-host/internal/platform"
	"github.com/kb-labs/kb-plugin-host/internal/registry"
	"github.com/kb-labs/kb-plugin-host/internal/xdg"
)

// State names one point in the §4.9 invocation state machine.
type State string

// Known states, in the order the spec's diagram lists them.
const (
	StateInit      State = "INIT"
	StateSpawned   State = "SPAWNED"
	StateReady     State = "READY"
	StateExecuting State = "EXECUTING"
	StateResult    State = "RESULT"
	StateError     State = "ERROR"
	StateAborted   State = "ABORTED"
	StateClosed    State = "CLOSED"
)

// ReadyTimeout bounds how long the executor waits for the child's `ready`
// control message before declaring the invocation fatally stuck (spec
// §4.9: "ready timeout (default 30s) -> fatal").
const ReadyTimeout = 30 * time.Second

// GracePeriod bounds how long the executor waits after sending `abort`
// before force-killing the child (spec §4.9 step 5).
const GracePeriod = 5 * time.Second

// Spawner launches one Sandbox Bootstrap child process. The default
// (processSpawner) execs a plugin binary; tests substitute an in-process
// fake. Grounded on goplugin.ClientFactory's seam for the same reason:
// keep process management behind a narrow, replaceable interface.
type Spawner interface {
	Spawn(ctx context.Context, cmd SpawnCommand) (Child, error)
}

// SpawnCommand is everything a Spawner needs to start one child.
type SpawnCommand struct {
	HandlerBinary string
	Args          []string
	Dir           string
	Env           []string
	ControlRead   *os.File // child's end of host->child, fd 3
	ControlWrite  *os.File // child's end of child->host, fd 4
	Stdout        io.Writer
	Stderr        io.Writer
}

// Child is a running (or already-exited) spawned process.
type Child interface {
	Wait() error
	Kill() error
	Pid() int
}

// Executor runs plugin commands to completion (spec §4.9).
type Executor struct {
	spawner  Spawner
	services platform.Services
	logger   *slog.Logger
	metrics  *observability.Metrics
	invoke   platform.InvokeFunc
}

// Config bundles Executor's dependencies.
type Config struct {
	Spawner  Spawner
	Services platform.Services
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// New returns an Executor. A nil Spawner defaults to exec.Command-based
// process spawning.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	spawner := cfg.Spawner
	if spawner == nil {
		spawner = &processSpawner{}
	}
	return &Executor{
		spawner:  spawner,
		services: cfg.Services,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Invocation bundles one command execution's inputs (spec §4.9: "a
// RegisteredCommand, argv, flags, a SystemContext").
type Invocation struct {
	Command     *registry.RegisteredCommand
	Argv        []string
	Flags       map[string]any
	Cwd         string
	TenantID    string
	RequestID   string
	HandlerPath string // overrides the manifest-declared handler path, for dev/test
}

// Outcome is what Run returns: the invocation's final exit code plus
// whatever result/error frame the child sent, for callers that want to
// surface it beyond the process exit code (e.g. JSON output mode).
type Outcome struct {
	ExitCode int
	Result   any
	Meta     any
	Error    *ipc.RPCError
	State    State
}

// Run executes inv to completion and returns its Outcome (spec §4.9 steps
// 1-7). ctx cancellation is translated into an `abort` control message
// followed by the quota timer's grace/force-kill sequence.
func (e *Executor) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	start := time.Now()
	pluginID := inv.Command.PluginID
	state := StateInit

	if e.metrics != nil {
		e.metrics.ActiveInvocations.Inc()
		defer e.metrics.ActiveInvocations.Dec()
	}
	defer func() {
		if e.metrics != nil {
			e.metrics.InvocationDuration.WithLabelValues(pluginID).Observe(time.Since(start).Seconds())
		}
	}()

	handlerPath, err := resolveHandlerPath(inv.Command, inv.HandlerPath)
	if err != nil {
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, err
	}

	policy := mergePermissions(inv.Command)

	desc := descriptor.Descriptor{
		Host:          descriptor.HostCLI,
		PluginID:      pluginID,
		PluginVersion: inv.Command.PluginVersion,
		TenantID:      inv.TenantID,
		Cwd:           inv.Cwd,
		Permissions:   policy,
		HostContext:   map[string]string{"requestId": inv.RequestID},
	}

	socketPath := filepath.Join(xdg.RuntimeDir(), fmt.Sprintf("kb-%s.sock", uuid.NewString()))
	if err := xdg.EnsureDir(filepath.Dir(socketPath)); err != nil {
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, fmt.Errorf("executor: prepare runtime dir: %w", err)
	}

	dispatcher := platform.NewDispatcher(e.withInvoke(e.services))
	server, err := ipc.Listen(socketPath, dispatcher, e.logger)
	if err != nil {
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, fmt.Errorf("executor: listen: %w", err)
	}
	defer func() {
		_ = server.Close()
		_ = os.Remove(socketPath)
	}()
	go func() {
		if serveErr := server.Serve(); serveErr != nil {
			e.logger.Debug("ipc server stopped", "error", serveErr)
		}
	}()

	hostControlR, childControlW, err := os.Pipe() // host -> child
	if err != nil {
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, fmt.Errorf("executor: create control pipe: %w", err)
	}
	childControlR, hostControlW, err := os.Pipe() // child -> host
	if err != nil {
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, fmt.Errorf("executor: create control pipe: %w", err)
	}

	control := ipc.NewControlChannel(hostControlW, hostControlR, e.logger)

	child, err := e.spawner.Spawn(ctx, SpawnCommand{
		HandlerBinary: handlerPath,
		Args:          inv.Argv,
		Dir:           inv.Cwd,
		ControlRead:   childControlR,
		ControlWrite:  childControlW,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	})
	// The host closes its copies of the child's fds once the child has its
	// own; otherwise the pipe never sees EOF when the child exits.
	_ = childControlR.Close()
	_ = childControlW.Close()
	if err != nil {
		_ = hostControlR.Close()
		_ = hostControlW.Close()
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: StateInit}, fmt.Errorf("executor: spawn: %w", err)
	}
	state = StateSpawned
	defer func() {
		_ = hostControlR.Close()
		_ = hostControlW.Close()
	}()

	if !e.waitForReady(control) {
		_ = child.Kill()
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: state}, fmt.Errorf("executor: timed out waiting for plugin %q to become ready", pluginID)
	}
	state = StateReady

	if err := control.SendExecute(ipc.ExecuteMessage{
		Descriptor:  desc,
		HandlerPath: handlerPath,
		Input:       map[string]any{"flags": inv.Flags, "argv": inv.Argv},
		SocketPath:  socketPath,
	}); err != nil {
		_ = child.Kill()
		e.observeOutcome(pluginID, "error")
		return Outcome{ExitCode: 1, State: state}, fmt.Errorf("executor: send execute: %w", err)
	}
	state = StateExecuting

	outcome, runErr := e.driveToCompletion(ctx, control, child, &state, policy.Quotas)

	status := "ok"
	if outcome.ExitCode != 0 {
		status = "error"
	}
	e.observeOutcome(pluginID, status)

	_ = child.Wait()
	state = StateClosed
	outcome.State = state

	return outcome, runErr
}

// frameResult carries one ControlChannel.NextFrame() result across a
// goroutine boundary so driveToCompletion can select on it alongside
// cancellation and the quota timer.
type frameResult struct {
	frame ipc.Frame
	ok    bool
}

// driveToCompletion waits for a result/error frame, the context being
// cancelled, or the quota timer expiring, whichever comes first (spec §4.9
// steps 5-6).
func (e *Executor) driveToCompletion(ctx context.Context, control *ipc.ControlChannel, child Child, state *State, quotas manifest.Quotas) (Outcome, error) {
	timeout := time.Duration(quotas.EffectiveTimeoutMs()) * time.Millisecond

	frames := make(chan frameResult, 1)
	go func() {
		frame, ok := control.NextFrame()
		frames <- frameResult{frame, ok}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fr := <-frames:
		return e.handleFrame(fr.frame, fr.ok, state)
	case <-ctx.Done():
		return e.abortAndWait(control, child, state, frames)
	case <-timer.C:
		e.logger.Warn("plugin invocation exceeded its quota timeout", "timeout", timeout)
		return e.abortAndWait(control, child, state, frames)
	}
}

func (e *Executor) handleFrame(frame ipc.Frame, ok bool, state *State) (Outcome, error) {
	if !ok {
		*state = StateError
		return Outcome{ExitCode: 1, Error: &ipc.RPCError{Message: "plugin exited without a result", Code: ipc.CodeInternalError}}, nil
	}
	switch frame.Type {
	case ipc.TypeResult:
		*state = StateResult
		return Outcome{ExitCode: frame.Result.ExitCode, Result: frame.Result.Result, Meta: frame.Result.Meta}, nil
	case ipc.TypeError:
		*state = StateError
		errCopy := frame.Error.Error
		exitCode := 1
		return Outcome{ExitCode: exitCode, Error: &errCopy}, nil
	default:
		*state = StateError
		return Outcome{ExitCode: 1, Error: &ipc.RPCError{Message: fmt.Sprintf("unexpected control frame %q", frame.Type), Code: ipc.CodeInternalError}}, nil
	}
}

// abortAndWait sends `abort`, waits up to GracePeriod for a matching
// result/error frame, and force-kills the child if none arrives (spec §4.9
// step 5, §5 "signal -> grace window -> force-kill"). Either way the
// invocation ends ABORTED with a non-zero exit code.
func (e *Executor) abortAndWait(control *ipc.ControlChannel, child Child, state *State, frames chan frameResult) (Outcome, error) {
	*state = StateAborted
	_ = control.SendAbort()

	grace := time.NewTimer(GracePeriod)
	defer grace.Stop()

	select {
	case fr := <-frames:
		outcome, err := e.handleFrame(fr.frame, fr.ok, state)
		*state = StateAborted
		if outcome.ExitCode == 0 {
			outcome.ExitCode = 1
		}
		if outcome.Error == nil {
			outcome.Error = &ipc.RPCError{Message: "plugin invocation aborted", Code: ipc.CodeInternalError}
		}
		return outcome, err
	case <-grace.C:
		e.logger.Warn("plugin did not terminate within the abort grace period, force-killing")
		_ = child.Kill()
		return Outcome{ExitCode: 1, Error: &ipc.RPCError{Message: "plugin force-killed after quota/abort", Code: ipc.CodeInternalError}}, nil
	}
}

func (e *Executor) waitForReady(control *ipc.ControlChannel) bool {
	done := make(chan bool, 1)
	go func() {
		frame, ok := control.NextFrame()
		done <- ok && frame.Type == ipc.TypeReady
	}()
	select {
	case ok := <-done:
		return ok
	case <-time.After(ReadyTimeout):
		return false
	}
}

func (e *Executor) observeOutcome(pluginID, status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.InvocationsTotal.WithLabelValues(pluginID, status).Inc()
}

// withInvoke returns svc with Invoke wired to the executor's own recursive
// command dispatch, unless the caller already supplied one.
func (e *Executor) withInvoke(svc platform.Services) platform.Services {
	if svc.Invoke == nil {
		svc.Invoke = e.invoke
	}
	return svc
}

// SetInvoke wires the invoke.call facade to call back into a router (spec
// §4.2 Invoke, §9: avoided as a constructor cycle, so this is set after
// New once the router exists).
func (e *Executor) SetInvoke(fn platform.InvokeFunc) {
	e.invoke = fn
}

// resolveHandlerPath implements spec §4.9 step 1: pkgRoot + handlerPath,
// unless override is set (dev/test) or handlerPath is already absolute.
func resolveHandlerPath(cmd *registry.RegisteredCommand, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if cmd == nil || cmd.Command.HandlerPath == "" {
		return "", fmt.Errorf("executor: registered command has no handlerPath")
	}
	if filepath.IsAbs(cmd.Command.HandlerPath) {
		return cmd.Command.HandlerPath, nil
	}
	return filepath.Join(cmd.PkgRoot, cmd.Command.HandlerPath), nil
}

// mergePermissions implements spec §4.9 step 2.
func mergePermissions(cmd *registry.RegisteredCommand) manifest.Policy {
	base := manifest.Policy{}
	if cmd.Manifest != nil {
		base = cmd.Manifest.Permissions
	}
	return base.Merge(cmd.Command.Permissions)
}
