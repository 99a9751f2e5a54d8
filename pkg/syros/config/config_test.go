package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAMLParsesFlatDottedKeys(t *testing.T) {
	// The typed accessors (LeaseStore, Saga, ...) read flat "a.b" keys, so a
	// YAML document must spell them out flat rather than nesting; this
	// mirrors how Config reads "timeout_ms"-style keys elsewhere in this package.
	yamlDoc := []byte(`
"lease_store.url": redis://localhost:6379
"lease_store.pool_size": 20
"lease_store.timeout_ms": 5000
"saga.max_retries_default": 3
"event.append_conflict_retries": 4
"lock.wait_poll_min_ms": 25
"lock.wait_poll_max_ms": 250
`)
	cfg, err := FromYAML(yamlDoc)
	require.NoError(t, err)

	lease := cfg.LeaseStore()
	assert.Equal(t, "redis://localhost:6379", lease.URL)
	assert.Equal(t, 20, lease.PoolSize)
	assert.Equal(t, 5*time.Second, lease.Timeout)

	assert.Equal(t, 3, cfg.Saga().MaxRetriesDefault)
	assert.Equal(t, 4, cfg.Event().AppendConflictRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.Lock().WaitPollMin)
	assert.Equal(t, 250*time.Millisecond, cfg.Lock().WaitPollMax)
}

func TestLeaseStoreOptionsDefaults(t *testing.T) {
	cfg := New(nil)
	opts := cfg.LeaseStore()
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 30*time.Second, opts.Timeout)
}

func TestLeaseStoreOptionsFromFlatKeys(t *testing.T) {
	cfg := New(map[string]any{
		"lease_store.url":        "redis://host:6379",
		"lease_store.pool_size":  25,
		"lease_store.timeout_ms": 1500,
	})
	opts := cfg.LeaseStore()
	assert.Equal(t, "redis://host:6379", opts.URL)
	assert.Equal(t, 25, opts.PoolSize)
	assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
}

func TestEventOptionsDefaultAppendConflictRetries(t *testing.T) {
	cfg := New(nil)
	assert.Equal(t, 8, cfg.Event().AppendConflictRetries)
}

func TestLockOptionsDefaults(t *testing.T) {
	cfg := New(nil)
	opts := cfg.Lock()
	assert.Equal(t, 50*time.Millisecond, opts.WaitPollMin)
	assert.Equal(t, 500*time.Millisecond, opts.WaitPollMax)
}

func TestDurationAcceptsMultipleShapes(t *testing.T) {
	cfg := New(map[string]any{
		"a": "1500ms",
		"b": 30,
		"c": float64(45),
	})
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("a", 0))
	assert.Equal(t, 30*time.Second, cfg.Duration("b", 0))
	assert.Equal(t, 45*time.Second, cfg.Duration("c", 0))
}

func TestStringSliceRejectsMixedTypes(t *testing.T) {
	cfg := New(map[string]any{"tags": []any{"a", 1, "c"}})
	assert.Equal(t, []string{"x"}, cfg.StringSlice("tags", []string{"x"}))
}
