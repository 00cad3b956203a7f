// Package trace implements the Plugin Context Factory's Trace entity
// (spec §3, §4.5): per-invocation identity used for log correlation and
// for parent/child linkage across nested `invoke.call` chains.
package trace

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// Trace carries the identity of one invocation for log correlation and
// nested-invocation linkage (spec §3).
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string

	events []Event
}

// Event is one record captured via RecordEvent/RecordException.
type Event struct {
	Name       string
	Attributes map[string]any
	Err        error
}

// RequestID formats the invocation's request id as "<traceId>:<spanId>"
// (spec §3).
func (t Trace) RequestID() string {
	return t.TraceID + ":" + t.SpanID
}

// RecordEvent appends a named event with arbitrary attributes to the trace.
func (t *Trace) RecordEvent(name string, attrs map[string]any) {
	t.events = append(t.events, Event{Name: name, Attributes: attrs})
}

// RecordException appends an error event to the trace.
func (t *Trace) RecordException(err error) {
	t.events = append(t.events, Event{Name: "exception", Err: err})
}

// Events returns the recorded events in registration order.
func (t Trace) Events() []Event {
	return t.events
}

// newID generates a fresh, lexically sortable identifier using ULID, the
// same generator the plugin host-function layer used for identifiers.
func newID() string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
}

// New builds a fresh root Trace (no parent request id): both traceId and
// spanId are freshly generated.
func New() Trace {
	return Trace{TraceID: newID(), SpanID: newID()}
}

// NewChild builds a Trace for an invocation whose parentRequestId is known
// (spec §4.5): spanId is freshly generated; traceId is extracted from the
// parent request id's prefix (before the colon) so correlated invocations
// share one traceId; parentSpanId is the part of parentRequestId after the
// colon.
func NewChild(parentRequestID string) Trace {
	traceID, parentSpanID, ok := ExtractTraceID(parentRequestID)
	if !ok {
		return New()
	}
	return Trace{TraceID: traceID, SpanID: newID(), ParentSpanID: parentSpanID}
}

// ExtractTraceID splits a "<traceId>:<spanId>" request id into its parts.
func ExtractTraceID(requestID string) (traceID, spanID string, ok bool) {
	idx := strings.Index(requestID, ":")
	if idx < 0 {
		return "", "", false
	}
	return requestID[:idx], requestID[idx+1:], true
}

// SpanContext builds an otel trace.SpanContext shaped view of this Trace so
// the trace-aware slog handler can attach trace_id/span_id attributes
// (internal/logging). otel requires fixed-width ids; our ULID-derived id
// strings are truncated or zero-padded to the required byte widths.
func (t Trace) SpanContext() trace.SpanContext {
	tid := traceIDFrom(t.TraceID)
	sid := spanIDFrom(t.SpanID)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
	})
}

// ContextWithTrace attaches this Trace's otel SpanContext to ctx so any
// code that logs via the package's trace-aware slog handler picks it up.
func ContextWithTrace(ctx context.Context, t Trace) context.Context {
	return trace.ContextWithSpanContext(ctx, t.SpanContext())
}

func traceIDFrom(s string) trace.TraceID {
	var id trace.TraceID
	copy(id[:], []byte(pad(s, len(id))))
	return id
}

func spanIDFrom(s string) trace.SpanID {
	var id trace.SpanID
	copy(id[:], []byte(pad(s, len(id))))
	return id
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat("0", n-len(s))
}
