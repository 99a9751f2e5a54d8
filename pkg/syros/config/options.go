package config

import "time"

// LeaseStoreOptions configures the lease store connection
// (lease_store.url/pool_size/timeout_ms).
type LeaseStoreOptions struct {
	URL      string
	PoolSize int
	Timeout  time.Duration
}

// LogStoreOptions configures the log store connection
// (log_store.url/pool_size/timeout_ms).
type LogStoreOptions struct {
	URL      string
	PoolSize int
	Timeout  time.Duration
}

// SagaOptions configures SagaOrchestrator defaults
// (saga.max_retries_default/default_step_timeout_ms).
type SagaOptions struct {
	MaxRetriesDefault  int
	DefaultStepTimeout time.Duration
}

// EventOptions configures EventStore defaults
// (event.append_conflict_retries).
type EventOptions struct {
	AppendConflictRetries int
}

// CacheOptions configures CacheManager defaults (cache.default_ttl_ms).
type CacheOptions struct {
	DefaultTTL time.Duration
}

// LockOptions configures LockManager's bounded-wait poll interval
// (lock.wait_poll_min_ms/wait_poll_max_ms).
type LockOptions struct {
	WaitPollMin time.Duration
	WaitPollMax time.Duration
}

// LeaseStore reads lease_store.* from c, defaulting pool_size to 10 and
// timeout_ms to 30s.
func (c Config) LeaseStore() LeaseStoreOptions {
	return LeaseStoreOptions{
		URL:      c.String("lease_store.url", ""),
		PoolSize: c.Int("lease_store.pool_size", 10),
		Timeout:  c.Milliseconds("lease_store.timeout_ms", 30*time.Second),
	}
}

// LogStore reads log_store.* from c, with the same pool defaults as LeaseStore.
func (c Config) LogStore() LogStoreOptions {
	return LogStoreOptions{
		URL:      c.String("log_store.url", ""),
		PoolSize: c.Int("log_store.pool_size", 10),
		Timeout:  c.Milliseconds("log_store.timeout_ms", 30*time.Second),
	}
}

// Saga reads saga.* from c.
func (c Config) Saga() SagaOptions {
	return SagaOptions{
		MaxRetriesDefault:  c.Int("saga.max_retries_default", 0),
		DefaultStepTimeout: c.Milliseconds("saga.default_step_timeout_ms", 30*time.Second),
	}
}

// Event reads event.* from c, defaulting append_conflict_retries to 8.
func (c Config) Event() EventOptions {
	return EventOptions{
		AppendConflictRetries: c.Int("event.append_conflict_retries", 8),
	}
}

// Cache reads cache.* from c.
func (c Config) Cache() CacheOptions {
	return CacheOptions{
		DefaultTTL: c.Milliseconds("cache.default_ttl_ms", 5*time.Minute),
	}
}

// Lock reads lock.* from c, defaulting wait_poll_min_ms/wait_poll_max_ms
// to 50/500.
func (c Config) Lock() LockOptions {
	return LockOptions{
		WaitPollMin: c.Milliseconds("lock.wait_poll_min_ms", 50*time.Millisecond),
		WaitPollMax: c.Milliseconds("lock.wait_poll_max_ms", 500*time.Millisecond),
	}
}
