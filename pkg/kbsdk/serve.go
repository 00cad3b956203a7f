// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package kbsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/descriptor"
	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/ipc"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/platform"
	"github.com/kb-labs/kb-plugin-host/internal/sandboxctx"
	"github.com/kb-labs/kb-plugin-host/pkg/errutil"
)

// DefaultReadyTimeout bounds how long Serve waits for the initial execute
// control message before giving up (spec §4.9: "ready timeout (default 30s)
// -> fatal" is the host's side of this; Serve applies the same bound
// locally so an orphaned child does not hang forever).
const DefaultReadyTimeout = 30 * time.Second

// Config bundles Serve's inputs. ControlIn/ControlOut are the dedicated
// control-channel pipes the host passes as extra file descriptors
// (internal/executor); Stdout/Stderr remain free for the handler's own UI
// output and logs. Environ defaults to os.Environ(), overridable for tests.
type Config struct {
	Handler    Handler
	ControlIn  io.Reader
	ControlOut io.Writer
	Stdout     io.Writer
	Environ    []string
	Logger     *slog.Logger
}

// Serve runs the Sandbox Bootstrap sequence (spec §4.6) to completion: send
// ready, wait for execute, apply harden, connect IPC, build the invocation Context,
// call the Handler, and report the outcome. It returns only once the
// invocation's result or error has been sent and teardown has run.
func Serve(cfg Config) error {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if cfg.Handler == nil {
		return fmt.Errorf("kbsdk: Serve called with a nil Handler")
	}

	env := parseBootstrapEnv(cfg.Environ)
	control := ipc.NewControlChannel(cfg.ControlOut, cfg.ControlIn, cfg.Logger)

	if err := control.SendReady(); err != nil {
		return fmt.Errorf("kbsdk: send ready: %w", err)
	}

	frame, ok := waitForExecute(control, DefaultReadyTimeout)
	if !ok {
		return fmt.Errorf("kbsdk: timed out waiting for an execute control message")
	}

	desc, err := decodeDescriptor(frame.Execute.Descriptor)
	if err != nil {
		_ = control.SendError(errorMessage(err, ipc.CodeInvalidHandler))
		return err
	}

	sink := harden.Sink(harden.StderrSink{Logger: cfg.Logger, Trace: env.trace})
	guard := harden.NewGuard(env.mode, sink)
	restoreEnv := curateEnviron(cfg.Environ, desc.Permissions.Env)
	defer restoreEnv()

	caller, closeIPC, err := dialPlatform(frame.Execute.SocketPath, cfg.Logger)
	if err != nil {
		_ = control.SendError(errorMessage(err, ipc.CodeInternalError))
		return err
	}
	defer closeIPC()

	ui := &stdoutUI{w: cfg.Stdout}

	invCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchAbort(control, cancel)

	result := sandboxctx.New(sandboxctx.Config{
		Descriptor: *desc,
		Platform:   platformHandle(caller, desc.PluginID),
		UI:         ui,
		Caller:     caller,
		Context:    invCtx,
		Guard:      guard,
	})
	setCurrent(result.Context)
	defer func() {
		clearCurrent()
		result.CleanupStack.Drain(context.Background(), cfg.Logger, 0)
	}()

	input := flattenFlags(frame.Execute.Input)

	outcome, handlerErr := invokeHandler(cfg.Handler, result.Context, input)
	if handlerErr != nil {
		errutil.LogError(cfg.Logger, "plugin handler returned an error", handlerErr)
		_ = control.SendError(errorMessage(handlerErr, ipc.CodeInternalError))
		return handlerErr
	}

	return control.SendResult(ipc.ResultMessage{
		ExitCode: outcome.ExitCode,
		Result:   outcome.Result,
		Meta:     outcome.Meta,
	})
}

// waitForExecute blocks for the first decodable execute frame or until
// timeout elapses.
func waitForExecute(control *ipc.ControlChannel, timeout time.Duration) (ipc.Frame, bool) {
	type result struct {
		frame ipc.Frame
		ok    bool
	}
	done := make(chan result, 1)
	go func() {
		frame, ok := control.NextFrame()
		done <- result{frame, ok}
	}()

	select {
	case r := <-done:
		return r.frame, r.ok && r.frame.Type == ipc.TypeExecute
	case <-time.After(timeout):
		return ipc.Frame{}, false
	}
}

// watchAbort drains further control frames and cancels ctx on the first
// abort (spec §4.6 step 6: "abort-controller-backed signal").
func watchAbort(control *ipc.ControlChannel, cancel context.CancelFunc) {
	for {
		frame, ok := control.NextFrame()
		if !ok {
			return
		}
		if frame.Type == ipc.TypeAbort {
			cancel()
			return
		}
	}
}

func decodeDescriptor(raw any) (*descriptor.Descriptor, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("kbsdk: re-marshal descriptor: %w", err)
	}
	var d descriptor.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("kbsdk: decode descriptor: %w", err)
	}
	return &d, nil
}

// flattenFlags surfaces input.flags as top-level input keys (spec §4.6 step
// 9), without mutating the original map seen on the wire.
func flattenFlags(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "flags" {
			continue
		}
		out[k] = v
	}
	if flags, ok := m["flags"].(map[string]any); ok {
		for k, v := range flags {
			out[k] = v
		}
	}
	return out
}

// dialPlatform connects the child's IPC client to the host's data-channel
// socket (spec §4.6 step 4).
func dialPlatform(socketPath string, logger *slog.Logger) (*ipc.Client, func(), error) {
	client, err := ipc.DialUnix(context.Background(), socketPath, 10*time.Second, logger)
	if err != nil {
		return nil, func() {}, fmt.Errorf("kbsdk: dial host ipc socket: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// platformHandle builds the sandboxctx.Platform view of thin RPC proxies
// delegating to the host over IPC (spec §4.6 step 4). The child's own
// logger is local-only and never RPCs, per spec. Cache is left nil: the
// state facade (internal/runtime.State) calls the "cache" adapter directly
// through the same caller rather than through a typed proxy.
func platformHandle(caller *ipc.Client, pluginID string) sandboxctx.Platform {
	return sandboxctx.Platform{
		Logger:      slog.Default(),
		LLM:         platform.NewLLMProxy(caller),
		Embeddings:  platform.NewEmbeddingsProxy(caller),
		VectorStore: platform.NewVectorStoreProxy(caller),
		Storage:     platform.NewStorageProxy(caller, pluginID),
		Analytics:   platform.NewAnalyticsProxy(caller, pluginID),
	}
}

// invokeHandler calls h.Execute, converting a panic into the same "thrown
// exception" path spec §4.6 step 11 describes for any unrecovered handler
// error.
func invokeHandler(h Handler, ctx *sandboxctx.Context, input map[string]any) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kbsdk: handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Execute(ctx, input)
}

// errorMessage wraps a Go error into the standard error envelope (spec
// §4.6 step 11): default code INTERNAL_ERROR unless the error already
// carries one of its own via the Code() convention.
func errorMessage(err error, defaultCode string) ipc.ErrorMessage {
	code := defaultCode
	if coder, ok := err.(interface{ Code() string }); ok {
		if c := coder.Code(); c != "" {
			code = c
		}
	}
	return ipc.ErrorMessage{
		Error: ipc.RPCError{
			Name:    "PluginError",
			Message: err.Error(),
			Code:    code,
		},
	}
}

// bootstrapEnv is the slice of §6 environment variables Serve reads to
// configure itself before the execute message arrives.
type bootstrapEnv struct {
	mode  harden.Mode
	trace bool
}

func parseBootstrapEnv(environ []string) bootstrapEnv {
	lookup := envLookup(environ)
	return bootstrapEnv{
		mode:  harden.ParseMode(lookup("KB_SANDBOX_MODE")),
		trace: parseBool(lookup("KB_SANDBOX_TRACE")) || parseBool(lookup("DEBUG_SANDBOX")),
	}
}

func envLookup(environ []string) func(string) string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return func(key string) string { return m[key] }
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// curateEnviron replaces the process-wide environment with the filtered
// view harden.FilterEnv computes (spec §4.3 "Ambient env"), returning a
// func that restores the original environment on invocation teardown. The
// runtime.Env facade still consults the same Policy independently (its
// denial is silent, spec §4.2); this curates what raw os.Getenv/os.Environ
// callers elsewhere in the process see.
func curateEnviron(original []string, allow manifest.EnvPolicy) func() {
	filtered := harden.FilterEnv(original, allow)

	os.Clearenv()
	for _, kv := range filtered {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			_ = os.Setenv(kv[:idx], kv[idx+1:])
		}
	}

	return func() {
		os.Clearenv()
		for _, kv := range original {
			if idx := strings.IndexByte(kv, '='); idx >= 0 {
				_ = os.Setenv(kv[:idx], kv[idx+1:])
			}
		}
	}
}

// stdoutUI is the stdout-backed façade handed to handlers (spec §4.6 step
// 5).
type stdoutUI struct {
	w io.Writer
}

func (u *stdoutUI) Print(msg string) { fmt.Fprintln(u.w, msg) }

func (u *stdoutUI) Printf(format string, args ...any) { fmt.Fprintf(u.w, format, args...) }

func (u *stdoutUI) Error(msg string) { fmt.Fprintln(u.w, "error:", msg) }
