package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{buf: &bytes.Buffer{}}
}

func (h *testHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{"level": r.Level.String(), "msg": r.Message}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{buf: h.buf, attrs: make([]slog.Attr, len(h.attrs)+len(attrs))}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler { return h }

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(lines[i], &m); err == nil {
			return m
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	enriched := EnrichLogger(logger, "lock.acquire", "orders:42")
	enriched.Info("test message")

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "lock.acquire", record["op"])
	assert.Equal(t, "orders:42", record["id"])
	assert.Equal(t, "test message", record["msg"])
}

func TestEnrichLoggerNilLoggerReturnsNil(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "op", "id"))
}

func TestLogLockAcquired(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogLockAcquired(logger, "orders:42", "lock-1", "worker-a", 12.5)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "orders:42", record["key"])
	assert.Equal(t, "lock-1", record["lock_id"])
	assert.Equal(t, "worker-a", record["owner"])
	assert.Equal(t, 12.5, record["duration_ms"])
}

func TestLogLockAcquiredNilLoggerDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogLockAcquired(nil, "k", "l", "o", 1)
	})
}

func TestLogLockWaitTimeout(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogLockWaitTimeout(logger, "orders:42", "worker-a", 500)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "orders:42", record["key"])
}

func TestLogSagaStepFailed(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogSagaStepFailed(logger, "saga-1", "charge_card", 3, errors.New("gateway timeout"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "saga-1", record["saga_id"])
	assert.Equal(t, "charge_card", record["step"])
	assert.Equal(t, float64(3), record["attempt"])
	assert.Equal(t, "gateway timeout", record["error"])
}

func TestLogSagaCompleted(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogSagaCompleted(logger, "saga-1", "completed", 42.0)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "saga-1", record["saga_id"])
	assert.Equal(t, "completed", record["status"])
}

func TestLogEventAppended(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEventAppended(logger, "stream-1", "evt-1", 7, 2)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "stream-1", record["stream_id"])
	assert.Equal(t, float64(7), record["version"])
	assert.Equal(t, float64(2), record["conflict_retries"])
}

func TestLogCacheInvalidateTag(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogCacheInvalidateTag(logger, "tenant:acme", 3)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "tenant:acme", record["tag"])
	assert.Equal(t, float64(3), record["keys_removed"])
}

func TestLoggingHelpersNilLoggerDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogSagaStarted(nil, "s", "n", 1)
		LogSagaStepFailed(nil, "s", "step", 1, errors.New("x"))
		LogSagaCompensating(nil, "s", 0)
		LogSagaCompensationFailed(nil, "s", "step", errors.New("x"))
		LogSagaCompleted(nil, "s", "completed", 1)
		LogEventAppended(nil, "s", "e", 1, 0)
		LogEventAppendConflict(nil, "s", 1)
		LogCacheInvalidateTag(nil, "t", 0)
		LogCacheExpired(nil, "k")
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, 0.0)
}
