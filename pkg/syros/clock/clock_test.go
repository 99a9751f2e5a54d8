package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClockSleepRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := SystemClock{}
	err := c.Sleep(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSystemClockSleepCompletes(t *testing.T) {
	c := SystemClock{}
	start := c.Now()
	err := c.Sleep(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, c.Now().After(start) || c.Now().Equal(start))
}

func TestFixedClockAdvancesOnSleep(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	require.NoError(t, c.Sleep(context.Background(), 30*time.Second))
	assert.Equal(t, start.Add(30*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
}

func TestFixedClockSleepHonorsCancelledContext(t *testing.T) {
	c := NewFixedClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := c.Now()
	err := c.Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, c.Now())
}
