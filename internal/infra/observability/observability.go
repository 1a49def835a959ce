// Package observability holds the Prometheus metrics and the in-memory
// commit trace buffer.
//
// This provides:
//   - Spans for every commit attempt (immediate or replayed), kept in a ring buffer
//   - Prometheus metrics for the sync queue, cache and remote transport
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Commit Spans
// ═══════════════════════════════════════════════════════════════════════════

// Span records one unit of sync work, such as committing a mutation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Failed    bool              `json:"failed"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Tracer keeps the most recent spans for inspection through the local API.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span. The caller must call EndSpan.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		Operation: operation,
		StartTime: time.Now(),
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Failed = true
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const traceIDKey contextKey = "debtsync-trace-id"

// WithTraceID returns a context carrying traceID; spans started from it share it.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Sync Metrics ───────────────────────────────────────────────────────────

// SyncQueueDepth tracks the number of mutations waiting for the network.
var SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "debtsync",
	Subsystem: "sync",
	Name:      "queue_depth",
	Help:      "Number of mutations in the durable sync queue.",
})

// SyncConnectivity is 1 while online, 0 while offline.
var SyncConnectivity = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "debtsync",
	Subsystem: "sync",
	Name:      "online",
	Help:      "Current connectivity state (1=online, 0=offline).",
})

// SyncMutations counts submitted mutations by outcome (committed, queued, failed).
var SyncMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "sync",
	Name:      "mutations_total",
	Help:      "Submitted mutations by outcome.",
}, []string{"type", "outcome"})

// SyncReplays counts replayed queue entries by outcome (committed, conflict, halted).
var SyncReplays = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "sync",
	Name:      "replays_total",
	Help:      "Replayed queue entries by outcome.",
}, []string{"outcome"})

// SyncReconciliations counts post-drain reconciliation passes.
var SyncReconciliations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "sync",
	Name:      "reconciliations_total",
	Help:      "Full cache reconciliation passes after a queue drain.",
})

// ─── Cache Metrics ──────────────────────────────────────────────────────────

// CacheLookups counts reads by result (hit, miss, stale).
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Cache reads by result.",
}, []string{"result"})

// CacheInvalidations counts entries newly marked stale.
var CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "cache",
	Name:      "invalidations_total",
	Help:      "Cache entries marked stale by invalidation.",
})

// CacheRefetches counts background refetches triggered by invalidation.
var CacheRefetches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "cache",
	Name:      "refetches_total",
	Help:      "Background refetches of active views.",
})

// CacheEvictions counts entries removed by the unused-time sweeper.
var CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "cache",
	Name:      "evictions_total",
	Help:      "Entries evicted after the unused-time threshold.",
})

// CacheEntries tracks the current number of cache entries.
var CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "debtsync",
	Subsystem: "cache",
	Name:      "entries",
	Help:      "Current number of cache entries.",
})

// ─── Remote Metrics ─────────────────────────────────────────────────────────

// RemoteRetries counts scheduled retries by error kind.
var RemoteRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "remote",
	Name:      "retries_total",
	Help:      "Retries scheduled by the retry policy, by error kind.",
}, []string{"kind"})

// RemoteLatency tracks remote request latency by endpoint.
var RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "debtsync",
	Subsystem: "remote",
	Name:      "request_seconds",
	Help:      "Remote request latency in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"endpoint"})

// RemoteErrors counts classified remote failures by kind.
var RemoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "remote",
	Name:      "errors_total",
	Help:      "Classified remote failures by kind.",
}, []string{"kind"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks failed spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "debtsync",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans that ended with an error.",
})
