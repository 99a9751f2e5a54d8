// Package observability provides structured logging, metrics, and tracing
// for the four Syros engines: lock, saga, event, cache.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds engine/operation context to a logger. Returns a new
// logger carrying op and a correlating ID (lock key, saga ID, stream ID, or
// cache key depending on caller).
//
// Example:
//
//	enriched := EnrichLogger(logger, "lock.acquire", "orders:42")
//	enriched.Info("granted") // includes op, id
func EnrichLogger(logger *slog.Logger, op, id string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("op", op),
		slog.String("id", id),
	)
}

// LogLockAcquired logs a successful lock acquisition.
func LogLockAcquired(logger *slog.Logger, key, lockID, owner string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("lock acquired",
		slog.String("key", key),
		slog.String("lock_id", lockID),
		slog.String("owner", owner),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogLockWaitTimeout logs a failed acquisition after the bounded wait expired.
func LogLockWaitTimeout(logger *slog.Logger, key, owner string, waitedMs float64) {
	if logger == nil {
		return
	}
	logger.Warn("lock acquire timed out",
		slog.String("key", key),
		slog.String("owner", owner),
		slog.Float64("waited_ms", waitedMs),
	)
}

// LogLockReleased logs a lock release attempt and its outcome.
func LogLockReleased(logger *slog.Logger, key, lockID string, released bool) {
	if logger == nil {
		return
	}
	logger.Debug("lock release",
		slog.String("key", key),
		slog.String("lock_id", lockID),
		slog.Bool("released", released),
	)
}

// LogSagaStarted logs a new saga being persisted in Pending status.
func LogSagaStarted(logger *slog.Logger, sagaID, name string, stepCount int) {
	if logger == nil {
		return
	}
	logger.Info("saga started",
		slog.String("saga_id", sagaID),
		slog.String("name", name),
		slog.Int("step_count", stepCount),
	)
}

// LogSagaStepFailed logs a step action returning an error after exhausting retries.
func LogSagaStepFailed(logger *slog.Logger, sagaID, stepName string, attempt int, err error) {
	if logger == nil {
		return
	}
	logger.Error("saga step failed",
		slog.String("saga_id", sagaID),
		slog.String("step", stepName),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// LogSagaCompensating logs the start of the compensation walk after a step failure.
func LogSagaCompensating(logger *slog.Logger, sagaID string, fromStep int) {
	if logger == nil {
		return
	}
	logger.Warn("saga compensating",
		slog.String("saga_id", sagaID),
		slog.Int("from_step", fromStep),
	)
}

// LogSagaCompensationFailed logs a best-effort compensation action that itself failed.
func LogSagaCompensationFailed(logger *slog.Logger, sagaID, stepName string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("saga compensation step failed",
		slog.String("saga_id", sagaID),
		slog.String("step", stepName),
		slog.String("error", err.Error()),
	)
}

// LogSagaCompleted logs a saga reaching a terminal status.
func LogSagaCompleted(logger *slog.Logger, sagaID, status string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("saga finished",
		slog.String("saga_id", sagaID),
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEventAppended logs a successful append to a stream.
func LogEventAppended(logger *slog.Logger, streamID, eventID string, version, retries int) {
	if logger == nil {
		return
	}
	logger.Debug("event appended",
		slog.String("stream_id", streamID),
		slog.String("event_id", eventID),
		slog.Int("version", version),
		slog.Int("conflict_retries", retries),
	)
}

// LogEventAppendConflict logs a version conflict retry during append.
func LogEventAppendConflict(logger *slog.Logger, streamID string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("event append conflict, retrying",
		slog.String("stream_id", streamID),
		slog.Int("attempt", attempt),
	)
}

// LogCacheInvalidateTag logs a tag invalidation sweep and how many keys it removed.
func LogCacheInvalidateTag(logger *slog.Logger, tag string, keysRemoved int) {
	if logger == nil {
		return
	}
	logger.Info("cache tag invalidated",
		slog.String("tag", tag),
		slog.Int("keys_removed", keysRemoved),
	)
}

// LogCacheExpired logs a lazy-expiry eviction discovered on read.
func LogCacheExpired(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("cache entry expired",
		slog.String("key", key),
	)
}

// TimedOperation measures the duration of an operation. Returns a function
// that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
