package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLeaseStoreSetNXIsExclusive(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "r", []byte("v1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "r", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, found, err := s.Get(ctx, "r")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", string(val))
}

func TestMemoryLeaseStoreExpiryIsLazy(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()

	_, err := s.SetNX(ctx, "r", []byte("v1"), time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, found, err := s.Get(ctx, "r")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := s.SetNX(ctx, "r", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired record must not block reacquisition")
}

func TestMemoryLeaseStoreCompareAndDelete(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	_, _ = s.SetNX(ctx, "r", []byte("v1"), time.Minute)

	ok, err := s.CompareAndDelete(ctx, "r", []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "r", []byte("v1"))
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent retry: deleting an already-gone record returns false, not an error.
	ok, err = s.CompareAndDelete(ctx, "r", []byte("v1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLeaseStoreCompareAndSwap(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()
	_, _ = s.SetNX(ctx, "r", []byte("v1"), time.Minute)

	ok, err := s.CompareAndSwap(ctx, "r", []byte("stale"), []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "r", []byte("v1"), []byte("v2"), 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	val, found, _ := s.Get(ctx, "r")
	require.True(t, found)
	assert.Equal(t, "v2", string(val))
}

func TestMemoryLeaseStoreDelete(t *testing.T) {
	s := NewMemoryLeaseStore()
	ctx := context.Background()

	ok, err := s.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _ = s.SetNX(ctx, "r", []byte("v1"), time.Minute)
	ok, err = s.Delete(ctx, "r")
	require.NoError(t, err)
	assert.True(t, ok)
}
