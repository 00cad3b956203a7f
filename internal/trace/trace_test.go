// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 kb Contributors

package trace_test

import (
	"testing"

	"github.com/kb-labs/kb-plugin-host/internal/trace"
)

func TestNew_FreshIDs(t *testing.T) {
	tr := trace.New()
	if tr.TraceID == "" || tr.SpanID == "" {
		t.Fatal("expected non-empty traceId and spanId")
	}
	if tr.ParentSpanID != "" {
		t.Errorf("ParentSpanID = %q, want empty for root trace", tr.ParentSpanID)
	}
}

func TestRequestID_Format(t *testing.T) {
	tr := trace.Trace{TraceID: "abc", SpanID: "def"}
	if got, want := tr.RequestID(), "abc:def"; got != want {
		t.Errorf("RequestID() = %q, want %q", got, want)
	}
}

func TestNewChild_InheritsTraceID(t *testing.T) {
	parent := trace.New()
	child := trace.NewChild(parent.RequestID())

	if child.TraceID != parent.TraceID {
		t.Errorf("child.TraceID = %q, want inherited %q", child.TraceID, parent.TraceID)
	}
	if child.SpanID == parent.SpanID {
		t.Error("child.SpanID should be freshly generated, not equal to parent's")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Errorf("child.ParentSpanID = %q, want %q", child.ParentSpanID, parent.SpanID)
	}
}

func TestNewChild_MalformedParent(t *testing.T) {
	child := trace.NewChild("not-a-request-id")
	if child.TraceID == "" || child.SpanID == "" {
		t.Fatal("expected fallback to a fresh root trace")
	}
}

func TestExtractTraceID(t *testing.T) {
	traceID, spanID, ok := trace.ExtractTraceID("t1:s1")
	if !ok || traceID != "t1" || spanID != "s1" {
		t.Errorf("ExtractTraceID() = (%q, %q, %v), want (t1, s1, true)", traceID, spanID, ok)
	}

	if _, _, ok := trace.ExtractTraceID("no-colon"); ok {
		t.Error("expected ok=false for a request id with no colon")
	}
}

func TestRecordEventAndException(t *testing.T) {
	tr := trace.New()
	tr.RecordEvent("handler.start", map[string]any{"pluginId": "git-tools"})
	tr.RecordException(errBoom)

	events := tr.Events()
	if len(events) != 2 {
		t.Fatalf("len(Events()) = %d, want 2", len(events))
	}
	if events[0].Name != "handler.start" {
		t.Errorf("events[0].Name = %q, want handler.start", events[0].Name)
	}
	if events[1].Err != errBoom {
		t.Errorf("events[1].Err = %v, want %v", events[1].Err, errBoom)
	}
}

var errBoom = testErr("boom")

type testErr string

func (e testErr) Error() string { return string(e) }
