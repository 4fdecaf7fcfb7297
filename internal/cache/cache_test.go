package cache

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/kv"
	"github.com/hashdrive/hashdrive/internal/metrics"
)

func meta(name string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"name":%q}`, name))
}

func TestCache_GetMissAndHit(t *testing.T) {
	c := New(Options{})

	_, ok := c.Get("nope")
	assert.False(t, ok)

	c.Set("f1", meta("a.txt"), []byte("content"))
	e, ok := c.Get("f1")
	require.True(t, ok)
	assert.Equal(t, []byte("content"), e.Content)
	assert.Equal(t, 1, e.AccessCount)

	_, _ = c.Get("f1")
	e, _ = c.Get("f1")
	assert.Equal(t, 3, e.AccessCount)
}

func TestCache_ExpiryEvictsOnAccess(t *testing.T) {
	c := New(Options{MaxAge: 24 * time.Hour})
	c.Set("old", meta("old"), nil)

	// Rewind the stored-at stamp 25 hours
	c.entries["old"].StoredAt = time.Now().Add(-25 * time.Hour)

	_, ok := c.Get("old")
	assert.False(t, ok)
	assert.False(t, c.Has("old"))
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestCache_EvictsOldestFifthAtCapacity(t *testing.T) {
	c := New(Options{MaxEntries: 50})

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("f%02d", i)
		c.Set(id, meta(id), nil)
		// Spread access times so eviction order is deterministic
		c.entries[id].LastAccessedAt = base.Add(time.Duration(i) * time.Minute)
	}

	c.Set("f50", meta("f50"), nil)

	assert.LessOrEqual(t, c.GetStats().Size, 50)
	// The ten oldest-accessed entries are gone
	for i := 0; i < 10; i++ {
		assert.False(t, c.Has(fmt.Sprintf("f%02d", i)), "f%02d should be evicted", i)
	}
	// The rest survive, plus the new entry
	assert.True(t, c.Has("f49"))
	assert.True(t, c.Has("f50"))
}

func TestCache_EvictionsAreCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.Init(nil).CacheEvictions)

	c := New(Options{MaxEntries: 5})
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("f%d", i), meta("x"), nil)
	}
	c.Set("f5", meta("x"), nil)

	// Capacity 5 evicts one entry (20%, minimum one)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Init(nil).CacheEvictions))
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := New(Options{})
	c.Set("a", meta("a"), nil)
	c.Set("b", meta("b"), nil)

	c.Remove("a")
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))

	c.Clear()
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestCache_Stats(t *testing.T) {
	c := New(Options{})
	c.Set("a", meta("a"), nil)
	c.Set("b", meta("b"), nil)
	_, _ = c.Get("b")
	_, _ = c.Get("b")
	_, _ = c.Get("a")

	s := c.GetStats()
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 3, s.TotalAccessCount)
	assert.Equal(t, "b", s.MostAccessed)
}

func TestCache_PersistsMetadataNotContent(t *testing.T) {
	store := kv.NewMemory()
	c := New(Options{Persist: store})
	c.Set("f1", meta("a.txt"), []byte("big content bytes"))

	// A fresh cache over the same store sees the metadata but no content
	c2 := New(Options{Persist: store})
	require.NoError(t, c2.Load())

	e, ok := c2.Get("f1")
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"a.txt"}`, string(e.Metadata))
	assert.Nil(t, e.Content)
}

func TestCache_LoadSkipsExpired(t *testing.T) {
	store := kv.NewMemory()
	c := New(Options{Persist: store, MaxAge: 24 * time.Hour})
	c.Set("fresh", meta("fresh"), nil)
	c.Set("stale", meta("stale"), nil)
	c.entries["stale"].StoredAt = time.Now().Add(-25 * time.Hour)
	c.save()

	c2 := New(Options{Persist: store, MaxAge: 24 * time.Hour})
	require.NoError(t, c2.Load())
	assert.True(t, c2.Has("fresh"))
	assert.False(t, c2.Has("stale"))
}

func TestCache_QuotaFailureEvictsAndRetries(t *testing.T) {
	store := kv.NewMemory()
	c := New(Options{Persist: store, MaxEntries: 50})
	for i := 0; i < 30; i++ {
		c.Set(fmt.Sprintf("f%02d", i), meta("x"), nil)
	}

	// Tighten the quota so the next snapshot write fails once
	data, ok, err := store.Get("cache:entries")
	require.NoError(t, err)
	require.True(t, ok)
	store.SetQuota(len(data))

	// Set must not panic or surface the failure; it evicts and retries
	c.Set("f30", meta("x"), nil)
	assert.True(t, c.Has("f30"))
	assert.Less(t, c.GetStats().Size, 31)
}
