// Package pointer manages the one mutable record per owner: the pointer
// naming the current registry snapshot's content id. The pointer is always
// replaced wholesale, never partially updated, and concurrent writers are
// last-write-wins by design.
package pointer

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an owner has no pointer yet (first session).
var ErrNotFound = errors.New("pointer not found")

// Pointer names the current registry snapshot for one owner.
type Pointer struct {
	OwnerID           string `json:"ownerId" dynamodbav:"owner_id"`
	RegistryContentID string `json:"registryContentId" dynamodbav:"registry_content_id"`
	LastUpdated       int64  `json:"lastUpdated" dynamodbav:"last_updated"` // epoch-ms
}

// Store reads and replaces pointer records in the metadata store.
type Store interface {
	// Get returns the pointer for ownerID, or ErrNotFound.
	Get(ctx context.Context, ownerID string) (*Pointer, error)
	// Set replaces the pointer for p.OwnerID wholesale.
	Set(ctx context.Context, p *Pointer) error
}
