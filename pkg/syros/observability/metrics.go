package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records Syros engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordLockAcquire records an Acquire call's outcome and how long it
	// waited for contention to clear before granting or timing out.
	RecordLockAcquire(ctx context.Context, waited time.Duration, success bool)

	// RecordSagaStep records one attempt of a step action: its duration and
	// whether that attempt failed. A retried step is recorded once per attempt.
	RecordSagaStep(ctx context.Context, stepName string, duration time.Duration, err error)

	// RecordSagaRun records a saga reaching a terminal status.
	RecordSagaRun(ctx context.Context, status string, duration time.Duration)

	// RecordEventAppend records an Append call's duration and how many
	// version-conflict retries it took.
	RecordEventAppend(ctx context.Context, duration time.Duration, retries int)

	// RecordCacheAccess records a single Get as a hit or a miss.
	RecordCacheAccess(ctx context.Context, hit bool)

	// RecordCacheHitRatio records the current cumulative hit ratio.
	RecordCacheHitRatio(ctx context.Context, ratio float64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	lockAcquires   metric.Int64Counter
	lockWaitMs     metric.Float64Histogram
	sagaSteps      metric.Int64Counter
	sagaStepMs     metric.Float64Histogram
	sagaStepErrors metric.Int64Counter
	sagaRuns       metric.Int64Counter
	sagaRunMs      metric.Float64Histogram
	eventAppends   metric.Int64Counter
	eventAppendMs  metric.Float64Histogram
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheHitRatio  metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance, lazily
// initializing it on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("syros")

	lockAcquires, err := meter.Int64Counter("syros.lock.acquires",
		metric.WithDescription("Number of lock acquire calls, labeled by success"),
	)
	if err != nil {
		return nil, err
	}

	lockWaitMs, err := meter.Float64Histogram("syros.lock.acquire.duration_ms",
		metric.WithDescription("Time spent waiting for contention to clear before acquire resolves"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sagaSteps, err := meter.Int64Counter("syros.saga.steps",
		metric.WithDescription("Number of saga step action invocations"),
	)
	if err != nil {
		return nil, err
	}

	sagaStepMs, err := meter.Float64Histogram("syros.saga.step.duration_ms",
		metric.WithDescription("Saga step action latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sagaStepErrors, err := meter.Int64Counter("syros.saga.step.errors",
		metric.WithDescription("Number of failed saga step action attempts"),
	)
	if err != nil {
		return nil, err
	}

	sagaRuns, err := meter.Int64Counter("syros.saga.runs",
		metric.WithDescription("Number of sagas reaching a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	sagaRunMs, err := meter.Float64Histogram("syros.saga.run.duration_ms",
		metric.WithDescription("End-to-end saga duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventAppends, err := meter.Int64Counter("syros.event.appends",
		metric.WithDescription("Number of successful event appends"),
	)
	if err != nil {
		return nil, err
	}

	eventAppendMs, err := meter.Float64Histogram("syros.event.append.duration_ms",
		metric.WithDescription("Event append latency in milliseconds, including conflict retries"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter("syros.cache.hits",
		metric.WithDescription("Number of cache Get calls resolved against a live entry"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter("syros.cache.misses",
		metric.WithDescription("Number of cache Get calls that found no live entry"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitRatio, err := meter.Float64Histogram("syros.cache.hit_ratio",
		metric.WithDescription("Cumulative hit ratio at time of recording"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		lockAcquires:   lockAcquires,
		lockWaitMs:     lockWaitMs,
		sagaSteps:      sagaSteps,
		sagaStepMs:     sagaStepMs,
		sagaStepErrors: sagaStepErrors,
		sagaRuns:       sagaRuns,
		sagaRunMs:      sagaRunMs,
		eventAppends:   eventAppends,
		eventAppendMs:  eventAppendMs,
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
		cacheHitRatio:  cacheHitRatio,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordLockAcquire records an Acquire outcome.
func (m *otelMetrics) RecordLockAcquire(ctx context.Context, waited time.Duration, success bool) {
	attrs := []attribute.KeyValue{attribute.Bool("success", success)}
	m.lockAcquires.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.lockWaitMs.Record(ctx, float64(waited.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordSagaStep records a step action's latency and error status.
func (m *otelMetrics) RecordSagaStep(ctx context.Context, stepName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("step", stepName)}
	m.sagaSteps.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sagaStepMs.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.sagaStepErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSagaRun records a saga's terminal status and end-to-end duration.
func (m *otelMetrics) RecordSagaRun(ctx context.Context, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	m.sagaRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sagaRunMs.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordEventAppend records an Append call's latency and retry count.
func (m *otelMetrics) RecordEventAppend(ctx context.Context, duration time.Duration, retries int) {
	attrs := []attribute.KeyValue{attribute.Int("retries", retries)}
	m.eventAppends.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventAppendMs.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheAccess records a single Get as a hit or a miss.
func (m *otelMetrics) RecordCacheAccess(ctx context.Context, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1)
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// RecordCacheHitRatio records the current cumulative hit ratio.
func (m *otelMetrics) RecordCacheHitRatio(ctx context.Context, ratio float64) {
	m.cacheHitRatio.Record(ctx, ratio)
}
