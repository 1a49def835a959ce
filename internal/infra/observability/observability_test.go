package observability

import (
	"context"
	"errors"
	"testing"
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

func TestTracer_StartEnd_RecordsSpan(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()

	span := tr.StartSpan(ctx, "commit", map[string]string{"customer_id": "c1"})
	tr.EndSpan(span, nil)

	if tr.SpanCount() != 1 {
		t.Fatalf("SpanCount() = %d, want 1", tr.SpanCount())
	}

	spans := tr.Spans(1)
	if spans[0].Operation != "commit" {
		t.Errorf("Operation = %q, want %q", spans[0].Operation, "commit")
	}
	if spans[0].Failed {
		t.Error("span without error should not be marked failed")
	}
	if spans[0].EndTime.Before(spans[0].StartTime) {
		t.Error("EndTime should not be before StartTime")
	}
	if spans[0].Attrs["customer_id"] != "c1" {
		t.Errorf("Attrs[customer_id] = %q, want c1", spans[0].Attrs["customer_id"])
	}
}

func TestTracer_EndSpan_RecordsError(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	span := tr.StartSpan(context.Background(), "replay", nil)
	tr.EndSpan(span, errors.New("remote unavailable"))

	spans := tr.Spans(1)
	if !spans[0].Failed {
		t.Error("span should be marked failed")
	}
	if spans[0].Attrs["error"] != "remote unavailable" {
		t.Errorf("error attr = %q", spans[0].Attrs["error"])
	}
}

func TestTracer_Disabled(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: false, MaxSpans: 100})
	span := tr.StartSpan(context.Background(), "noop", nil)
	tr.EndSpan(span, nil)

	if tr.SpanCount() != 0 {
		t.Errorf("disabled tracer SpanCount() = %d, want 0", tr.SpanCount())
	}
}

func TestTracer_NilSafe(t *testing.T) {
	var tr *Tracer
	span := tr.StartSpan(context.Background(), "op", nil)
	tr.EndSpan(span, nil)
}

func TestTracer_RingBuffer_Overflow(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 3})
	ctx := context.Background()

	ops := []string{"a", "b", "c", "d", "e"}
	for _, op := range ops {
		tr.EndSpan(tr.StartSpan(ctx, op, nil), nil)
	}

	if tr.SpanCount() != 3 {
		t.Fatalf("SpanCount() = %d, want 3", tr.SpanCount())
	}
	spans := tr.Spans(0)
	if spans[0].Operation != "c" || spans[2].Operation != "e" {
		t.Errorf("kept %q..%q, want c..e", spans[0].Operation, spans[2].Operation)
	}
}

func TestTracer_Spans_Limit(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		tr.EndSpan(tr.StartSpan(ctx, "op", nil), nil)
	}

	if got := len(tr.Spans(3)); got != 3 {
		t.Errorf("Spans(3) returned %d, want 3", got)
	}
	if got := len(tr.Spans(0)); got != 10 {
		t.Errorf("Spans(0) returned %d, want all 10", got)
	}
}

// ─── Context Propagation ────────────────────────────────────────────────────

func TestTracer_ContextPropagation(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := WithTraceID(context.Background(), "drain-1")

	tr.EndSpan(tr.StartSpan(ctx, "replay", nil), nil)
	tr.EndSpan(tr.StartSpan(ctx, "replay", nil), nil)

	for _, s := range tr.Spans(0) {
		if s.TraceID != "drain-1" {
			t.Errorf("TraceID = %q, want drain-1", s.TraceID)
		}
	}
}

func TestTracer_SpanIDUnique(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()

	span1 := tr.StartSpan(ctx, "op1", nil)
	span2 := tr.StartSpan(ctx, "op2", nil)
	if span1.SpanID == span2.SpanID {
		t.Errorf("SpanIDs should be unique, both = %q", span1.SpanID)
	}
	if span1.TraceID == "" {
		t.Error("TraceID should be generated when the context has none")
	}
}
