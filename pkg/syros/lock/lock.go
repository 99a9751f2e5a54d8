// Package lock implements Syros's LockManager: named, owned, TTL-leased
// locks over the shared lease store, with an optional bounded wait for
// acquire and atomic compare-based release/extend.
package lock

import (
	"encoding/json"
	"time"
)

// record is the value stored in the lease store for a held lock.
type record struct {
	LockID     string            `json:"lock_id"`
	Owner      string            `json:"owner"`
	AcquiredAt time.Time         `json:"acquired_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r *record) marshal() []byte {
	b, _ := json.Marshal(r) // record's fields always marshal cleanly
	return b
}

func unmarshalRecord(b []byte) (*record, bool) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// AcquireResult is returned by a successful Acquire.
type AcquireResult struct {
	LockID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// ExtendResult is returned by a successful Extend.
type ExtendResult struct {
	NewExpiresAt time.Time
}

// Status describes the current state of a key, whether held or free.
type Status struct {
	IsLocked   bool
	LockID     string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Metadata   map[string]string
}

// Default bounded-wait poll interval bounds for Acquire's waiter: starts
// fast, backs off to avoid hammering the lease store while a key is
// contended. Overridable per-Manager via SetPollBounds or
// NewManagerFromConfig (lock.wait_poll_min_ms/wait_poll_max_ms).
const (
	defaultMinPollInterval = 50 * time.Millisecond
	defaultMaxPollInterval = 500 * time.Millisecond
)
