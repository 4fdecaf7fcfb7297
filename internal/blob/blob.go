// Package blob provides write and read access to the content-addressable
// storage network: content goes in as bytes and comes back out by its
// content id.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a content id has no stored blob.
var ErrNotFound = errors.New("blob not found")

// Store is the storage network surface: put bytes, get them back by
// content id.
type Store interface {
	// Put stores data and returns its content id.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves the blob for a content id.
	Get(ctx context.Context, contentID string) ([]byte, error)
	// Has reports whether a content id resolves to a stored blob.
	Has(ctx context.Context, contentID string) (bool, error)
}
