// Package store provides the two persistence substrates the engines are
// built on: a lease store (fast, TTL-native, backing locks and cache) and a
// log store (transactional, versioned, backing sagas and events).
package store

import (
	"context"
	"time"
)

// LeaseStore is the fast, TTL-native substrate LockManager and CacheManager
// are built on: atomic SET-IF-ABSENT with TTL, GET, a Lua-scriptable
// conditional DEL, a conditional replace of value and TTL (CompareAndSwap,
// used for lease extension), and an unconditional DEL.
//
// Implementations must be safe for concurrent use.
type LeaseStore interface {
	// SetNX atomically creates key with value and ttl iff key does not
	// already hold a live record. Returns true if the record was created.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the current value for key, or ok=false if key is absent
	// or has expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// CompareAndDelete atomically removes key iff its current value equals
	// expected exactly. Returns true iff the delete happened.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// CompareAndSwap atomically replaces key's value and TTL iff its current
	// value equals expected exactly. Returns true iff the swap happened.
	CompareAndSwap(ctx context.Context, key string, expected, newValue []byte, ttl time.Duration) (bool, error)

	// Delete unconditionally removes key. Returns true iff a record existed.
	Delete(ctx context.Context, key string) (bool, error)
}
