// Package sandboxctx implements the Plugin Context Factory (spec §4.5):
// composes the per-invocation Context handed to a plugin handler from a
// Descriptor, the host-platform services, a UI façade, and a cancellation
// signal, alongside the identity (requestId/traceId/spanId) and the
// CleanupStack the host drives after the handler returns.
package sandboxctx

import (
	"context"
	"path/filepath"

	"github.com/kb-labs/kb-plugin-host/internal/cleanup"
	"github.com/kb-labs/kb-plugin-host/internal/descriptor"
	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/runtime"
	"github.com/kb-labs/kb-plugin-host/internal/trace"
)

// Platform is the set of host-platform services passed through unchanged
// into the Context (spec §4.5: "the context factory does not wrap them").
// nil fields are valid; a facade simply has no backing service.
type Platform struct {
	Logger      any
	LLM         any
	Embeddings  any
	VectorStore any
	Cache       any
	Storage     any
	Analytics   any
}

// UI is the stdout-backed façade a handler uses to report progress (spec
// §4.6 step 5). Left as a narrow interface so cmd/kb and pkg/kbsdk can each
// supply their own concrete implementation (TTY-aware vs. plain writer).
type UI interface {
	Print(msg string)
	Printf(format string, args ...any)
	Error(msg string)
}

// Config bundles the Plugin Context Factory's inputs (spec §4.5).
type Config struct {
	Descriptor descriptor.Descriptor
	Platform   Platform
	UI         UI
	Caller     runtime.Caller
	Context    context.Context // carries the cancellation signal (spec §4.6 step 6)
	Guard      *harden.Guard
}

// Context is the composed per-invocation handle given to a plugin handler.
type Context struct {
	Ctx       context.Context
	RequestID string
	TraceID   string
	SpanID    string
	Trace     trace.Trace
	Runtime   *runtime.Bundle
	Platform  Platform
	UI        UI
	Cleanup   *cleanup.Stack
}

// Result is the factory's output (spec §4.5): the composed Context plus the
// identity triple and CleanupStack surfaced separately so the host can
// drive cleanup after handler return even if the handler never touched it.
type Result struct {
	Context      *Context
	CleanupStack *cleanup.Stack
	RequestID    string
	TraceID      string
	SpanID       string
}

// New composes a Context from cfg (spec §4.5).
func New(cfg Config) Result {
	t := newTrace(cfg.Descriptor.ParentRequestID)

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = trace.ContextWithTrace(ctx, t)

	outdir := cfg.Descriptor.Outdir
	if outdir == "" {
		outdir = filepath.Join(cfg.Descriptor.Cwd, ".kb", "output")
	}

	stack := cleanup.New()

	bundle := runtime.NewBundle(runtime.Config{
		Policy:   cfg.Descriptor.Permissions,
		Cwd:      cfg.Descriptor.Cwd,
		Outdir:   outdir,
		PluginID: cfg.Descriptor.PluginID,
		TenantID: cfg.Descriptor.TenantID,
		Caller:   cfg.Caller,
		Cleanup:  stack,
		Guard:    cfg.Guard,
	})

	c := &Context{
		Ctx:       ctx,
		RequestID: t.RequestID(),
		TraceID:   t.TraceID,
		SpanID:    t.SpanID,
		Trace:     t,
		Runtime:   bundle,
		Platform:  cfg.Platform,
		UI:        cfg.UI,
		Cleanup:   stack,
	}

	return Result{
		Context:      c,
		CleanupStack: stack,
		RequestID:    c.RequestID,
		TraceID:      c.TraceID,
		SpanID:       c.SpanID,
	}
}

// newTrace implements the spanId/traceId composition rule (spec §4.5):
// spanId is always fresh; traceId is inherited from the parent request id
// when present, otherwise fresh.
func newTrace(parentRequestID string) trace.Trace {
	if parentRequestID == "" {
		return trace.New()
	}
	return trace.NewChild(parentRequestID)
}
