package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewSpanManagerStartEngineSpan(t *testing.T) {
	m := NewSpanManager()
	ctx, span := m.StartEngineSpan(context.Background(), "lock", "acquire:orders:42")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	m.EndSpanWithError(span, nil)
}

func TestSpanManagerEndSpanWithErrorHandlesNilSpan(t *testing.T) {
	m := NewSpanManager()
	assert.NotPanics(t, func() {
		m.EndSpanWithError(nil, errors.New("boom"))
	})
}

func TestSpanManagerAddSpanEventOnContextWithoutSpanDoesNotPanic(t *testing.T) {
	m := NewSpanManager()
	assert.NotPanics(t, func() {
		m.AddSpanEvent(context.Background(), "checkpoint")
	})
}

func TestConvenienceFunctionsMirrorSpanManager(t *testing.T) {
	ctx, span := StartEngineSpan(context.Background(), "saga", "saga-1")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		AddSpanEvent(ctx, "step completed")
		EndSpanWithError(span, nil)
	})
}

var _ trace.Span = noopSpan
