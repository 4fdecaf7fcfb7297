// Package kv provides the durable key-value surface used for local
// persistence of cache entries, gateway statistics, and custom gateway lists.
package kv

import "errors"

var (
	// ErrQuotaExceeded is returned when a write would exceed the store's
	// configured capacity.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
)

// Store is a small persistent key-value surface. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)
}
