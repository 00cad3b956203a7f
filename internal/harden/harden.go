// Package harden implements the Sandbox Harden Layer (spec §4.3), narrowed
// to what is expressible once the isolation boundary is the OS process
// boundary rather than a language-level ambient module loader (spec §9,
// and the "Harden layer in Go" decision in SPEC_FULL.md): environment
// curation inside the child (pkg/kbsdk installs FilterEnv's view as the
// process environment once execute arrives), a ViolationEvent sink driven by every Policy
// denial surfaced through the runtime facades (internal/runtime), and a
// Mode that governs whether a facade denial is a hard error, a
// logged-and-allowed pass-through (shell only, "compat"), or a warning.
package harden

import (
	"fmt"
	"log/slog"
	goruntime "runtime"
	"strings"

	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// Mode governs how a facade denial is handled (spec §4.3).
type Mode string

// Known modes.
const (
	Enforce Mode = "enforce"
	Compat  Mode = "compat"
	Warn    Mode = "warn"
)

// ParseMode parses the KB_SANDBOX_MODE environment value, defaulting to
// Enforce for an empty or unrecognised value (spec §6).
func ParseMode(s string) Mode {
	switch Mode(s) {
	case Enforce, Compat, Warn:
		return Mode(s)
	default:
		return Enforce
	}
}

// ViolationEvent reports one harden interception (spec §3).
type ViolationEvent struct {
	Kind     string
	Target   string
	Decision string // "block" or "warn"
	Message  string
}

// Sink receives ViolationEvents as they occur.
type Sink interface {
	Report(ViolationEvent)
}

// StderrSink is the default sink: a structured log line on stderr (spec
// §4.3: "default: structured line on stderr").
type StderrSink struct {
	Logger *slog.Logger
	Trace  bool
}

// Report implements Sink.
func (s StderrSink) Report(v ViolationEvent) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", v.Kind, "target", v.Target, "decision", v.Decision}
	if s.Trace {
		attrs = append(attrs, "stack", callerStackSnippet())
	}
	logger.Warn("sandbox violation: "+v.Message, attrs...)
}

// MultiSink fans one ViolationEvent out to every sink in order.
type MultiSink []Sink

// Report implements Sink.
func (m MultiSink) Report(v ViolationEvent) {
	for _, s := range m {
		s.Report(v)
	}
}

// Guard wraps a Policy-deny Decision with a Mode, deciding whether the
// calling facade should still fail (enforce, and every non-shell facade
// under compat), or pass through while reporting a violation (warn
// everywhere; compat for shell only — "the one facade where a replacement
// emulation... is meaningful in Go", per the harden design decision).
type Guard struct {
	Mode Mode
	Sink Sink
}

// NewGuard builds a Guard with a default StderrSink when sink is nil.
func NewGuard(mode Mode, sink Sink) *Guard {
	if sink == nil {
		sink = StderrSink{}
	}
	return &Guard{Mode: mode, Sink: sink}
}

// Evaluate inspects a policy.Decision for kind/target. If the decision
// allows, it is a no-op and passThrough is true. On a deny decision, it
// reports a ViolationEvent and returns whether the caller should let the
// operation through anyway.
func (g *Guard) Evaluate(kind, target string, d policy.Decision) (passThrough bool) {
	if d.Allow {
		return true
	}

	switch g.Mode {
	case Warn:
		g.report(kind, target, "warn", d.Reason)
		return true
	case Compat:
		if kind == "shell" {
			g.report(kind, target, "warn", d.Reason)
			return true
		}
		g.report(kind, target, "block", d.Reason)
		return false
	default: // Enforce
		g.report(kind, target, "block", d.Reason)
		return false
	}
}

func (g *Guard) report(kind, target, decision, reason string) {
	g.Sink.Report(ViolationEvent{
		Kind:     kind,
		Target:   target,
		Decision: decision,
		Message:  reason,
	})
}

// FilterEnv returns the entries of environ whose keys match the allow set
// (plus the fixed always-allowed keys, enforced inside policy.CheckEnv)
// (spec §4.3: "Ambient env"); pkg/kbsdk installs the result as the sandboxed
// child's process-wide env view. environ is the os.Environ()-shaped
// "KEY=VALUE" slice.
func FilterEnv(environ []string, allow manifest.EnvPolicy) []string {
	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		key, _, ok := splitEnvPair(kv)
		if !ok {
			continue
		}
		if d := policy.CheckEnv(key, allow.Read); d.Allow {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

func splitEnvPair(kv string) (key, value string, ok bool) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", false
	}
	return kv[:idx], kv[idx+1:], true
}

// callerStackSnippet returns a short caller description used when
// KB_SANDBOX_TRACE is enabled (spec §4.3: "a short caller stack snippet").
func callerStackSnippet() string {
	pc, file, line, ok := goruntime.Caller(3)
	if !ok {
		return "unknown caller"
	}
	fn := goruntime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s (%s:%d)", name, file, line)
}
