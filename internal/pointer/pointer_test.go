package pointer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/kv"
)

func TestKVStore_MissingOwner(t *testing.T) {
	s := NewKVStore(kv.NewMemory())

	_, err := s.Get(context.Background(), "owner-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStore_SetGetReplace(t *testing.T) {
	s := NewKVStore(kv.NewMemory())
	ctx := context.Background()

	first := &Pointer{OwnerID: "owner-1", RegistryContentID: "QmFirst", LastUpdated: time.Now().UnixMilli()}
	require.NoError(t, s.Set(ctx, first))

	got, err := s.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "QmFirst", got.RegistryContentID)

	// Replacement is wholesale: the record is the new one, nothing merged
	second := &Pointer{OwnerID: "owner-1", RegistryContentID: "QmSecond", LastUpdated: time.Now().UnixMilli()}
	require.NoError(t, s.Set(ctx, second))

	got, err = s.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "QmSecond", got.RegistryContentID)
}

func TestKVStore_OwnersAreIsolated(t *testing.T) {
	s := NewKVStore(kv.NewMemory())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, &Pointer{OwnerID: "a", RegistryContentID: "QmA"}))
	require.NoError(t, s.Set(ctx, &Pointer{OwnerID: "b", RegistryContentID: "QmB"}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "QmA", got.RegistryContentID)
}
