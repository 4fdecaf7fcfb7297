// Package cache provides a bounded, age- and LRU-evicting store of file
// metadata (and optionally raw content) keyed by file id. Metadata survives
// the session through the durable key-value surface; raw content never does.
package cache

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/kv"
	"github.com/hashdrive/hashdrive/internal/metrics"
)

const (
	// DefaultMaxEntries bounds the number of cached files.
	DefaultMaxEntries = 50
	// DefaultMaxAge bounds how long an entry is served before expiring.
	DefaultMaxAge = 24 * time.Hour

	persistKey = "cache:entries"
)

// Entry is a cached file. Metadata is an opaque snapshot owned by the
// caller; the cache never interprets it.
type Entry struct {
	FileID         string          `json:"fileId"`
	Metadata       json.RawMessage `json:"metadata"`
	Content        []byte          `json:"-"` // session-only, never persisted
	StoredAt       time.Time       `json:"storedAt"`
	LastAccessedAt time.Time       `json:"lastAccessedAt"`
	AccessCount    int             `json:"accessCount"`
}

// Stats summarizes cache contents.
type Stats struct {
	Size             int
	TotalAccessCount int
	AvgAge           time.Duration
	MostAccessed     string // file id, empty when cache is empty
}

// Options configures a Cache.
type Options struct {
	MaxEntries int
	MaxAge     time.Duration
	Persist    kv.Store // optional; nil disables persistence
	Logger     zerolog.Logger
}

// Cache is a bounded in-memory file cache.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
	maxAge     time.Duration
	persist    kv.Store
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a cache with the given options.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	return &Cache{
		entries:    make(map[string]*Entry),
		maxEntries: opts.MaxEntries,
		maxAge:     opts.MaxAge,
		persist:    opts.Persist,
		logger:     opts.Logger,
		metrics:    metrics.Init(nil),
		now:        time.Now,
	}
}

// Load restores persisted metadata entries from a previous session.
// Content is never restored; it was never persisted.
func (c *Cache) Load() error {
	if c.persist == nil {
		return nil
	}

	data, ok, err := c.persist.Get(persistKey)
	if err != nil || !ok {
		return err
	}

	var stored []*Entry
	if err := json.Unmarshal(data, &stored); err != nil {
		// Schema drift: clear and rebuild rather than guess.
		c.logger.Warn().Err(err).Msg("discarding unreadable cache snapshot")
		return c.persist.Delete(persistKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, e := range stored {
		if now.Sub(e.StoredAt) <= c.maxAge {
			c.entries[e.FileID] = e
		}
	}
	return nil
}

// Get returns the entry for fileID if present and fresh. Expired entries
// are evicted on access. A hit bumps the access stats.
func (c *Cache) Get(fileID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fileID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.maxAge {
		delete(c.entries, fileID)
		c.save()
		return nil, false
	}

	e.LastAccessedAt = c.now()
	e.AccessCount++
	return e, true
}

// Has reports whether a fresh entry exists without bumping access stats.
func (c *Cache) Has(fileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fileID]
	if !ok {
		return false
	}
	if c.now().Sub(e.StoredAt) > c.maxAge {
		delete(c.entries, fileID)
		c.save()
		return false
	}
	return true
}

// Set stores metadata (and optional content) for fileID. At capacity the
// oldest-accessed 20% of entries (at least one) are evicted first.
func (c *Cache) Set(fileID string, metadata json.RawMessage, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fileID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked(c.evictionBatchSize())
	}

	now := c.now()
	c.entries[fileID] = &Entry{
		FileID:         fileID,
		Metadata:       metadata,
		Content:        content,
		StoredAt:       now,
		LastAccessedAt: now,
	}
	c.save()
}

// Remove drops fileID from the cache.
func (c *Cache) Remove(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fileID]; ok {
		delete(c.entries, fileID)
		c.save()
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.save()
}

// GetStats returns a summary of the cache contents.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Size: len(c.entries)}
	if s.Size == 0 {
		return s
	}

	now := c.now()
	var totalAge time.Duration
	best := -1
	for _, e := range c.entries {
		s.TotalAccessCount += e.AccessCount
		totalAge += now.Sub(e.StoredAt)
		if e.AccessCount > best {
			best = e.AccessCount
			s.MostAccessed = e.FileID
		}
	}
	s.AvgAge = totalAge / time.Duration(s.Size)
	return s
}

// evictionBatchSize is 20% of capacity, at least 1.
func (c *Cache) evictionBatchSize() int {
	n := c.maxEntries / 5
	if n < 1 {
		n = 1
	}
	return n
}

// evictOldestLocked removes the n entries with the oldest LastAccessedAt.
func (c *Cache) evictOldestLocked(n int) {
	if n >= len(c.entries) {
		c.metrics.CacheEvictions.Add(float64(len(c.entries)))
		c.entries = make(map[string]*Entry)
		return
	}

	all := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastAccessedAt.Before(all[j].LastAccessedAt)
	})
	for _, e := range all[:n] {
		delete(c.entries, e.FileID)
	}
	c.metrics.CacheEvictions.Add(float64(n))
}

// save persists the metadata snapshot. Content is deliberately excluded.
// A quota failure triggers one round of proactive eviction and a single
// retry; persistence failures never surface to the caller.
func (c *Cache) save() {
	if c.persist == nil {
		return
	}

	err := c.persist.Set(persistKey, c.marshalLocked())
	if err == nil {
		return
	}
	if errors.Is(err, kv.ErrQuotaExceeded) {
		c.evictOldestLocked(c.evictionBatchSize())
		if err = c.persist.Set(persistKey, c.marshalLocked()); err == nil {
			return
		}
	}
	c.logger.Debug().Err(err).Msg("cache persistence failed")
}

func (c *Cache) marshalLocked() []byte {
	all := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	data, _ := json.Marshal(all)
	return data
}
