package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordLockAcquire does nothing.
func (NoopMetrics) RecordLockAcquire(_ context.Context, _ time.Duration, _ bool) {}

// RecordSagaStep does nothing.
func (NoopMetrics) RecordSagaStep(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordSagaRun does nothing.
func (NoopMetrics) RecordSagaRun(_ context.Context, _ string, _ time.Duration) {}

// RecordEventAppend does nothing.
func (NoopMetrics) RecordEventAppend(_ context.Context, _ time.Duration, _ int) {}

// RecordCacheAccess does nothing.
func (NoopMetrics) RecordCacheAccess(_ context.Context, _ bool) {}

// RecordCacheHitRatio does nothing.
func (NoopMetrics) RecordCacheHitRatio(_ context.Context, _ float64) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing. We use the OTel noop package for a
// proper no-op span implementation.
var noopSpan = noop.Span{}

// StartEngineSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEngineSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
