// Package idgen generates the UUIDv4 values used for every externally
// visible identifier (lock_id, saga_id, event_id). Kept as a single seam so
// every engine mints IDs the same way.
package idgen

import "github.com/google/uuid"

// New returns a freshly generated UUIDv4 string.
func New() string {
	return uuid.New().String()
}
