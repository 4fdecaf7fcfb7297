package pointer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashdrive/hashdrive/internal/kv"
)

const keyPrefix = "pointer:"

// KVStore keeps pointer records in the local key-value surface. Suitable
// for single-device use and tests; multi-device sessions want the
// DynamoDB-backed store.
type KVStore struct {
	store kv.Store
}

// NewKVStore creates a pointer store over a key-value surface.
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{store: store}
}

// Get returns the pointer for ownerID.
func (s *KVStore) Get(_ context.Context, ownerID string) (*Pointer, error) {
	data, ok, err := s.store.Get(keyPrefix + ownerID)
	if err != nil {
		return nil, fmt.Errorf("read pointer: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	var p Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pointer: %w", err)
	}
	return &p, nil
}

// Set replaces the pointer for p.OwnerID.
func (s *KVStore) Set(_ context.Context, p *Pointer) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pointer: %w", err)
	}
	if err := s.store.Set(keyPrefix+p.OwnerID, data); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	return nil
}
