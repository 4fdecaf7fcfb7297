package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hashdrive/hashdrive/internal/blob"
	"github.com/hashdrive/hashdrive/internal/cache"
	"github.com/hashdrive/hashdrive/internal/faults"
	"github.com/hashdrive/hashdrive/internal/metrics"
	"github.com/hashdrive/hashdrive/internal/pin"
	"github.com/hashdrive/hashdrive/internal/pointer"
)

// Fetcher is the retrieval engine's read surface. Satisfied by
// *retrieval.Engine.
type Fetcher interface {
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// Deps are the collaborators a Store needs. All are injected explicitly so
// tests can substitute doubles.
type Deps struct {
	Pointers pointer.Store
	Blobs    blob.Store // write path to the storage network
	Fetcher  Fetcher    // read path through the gateways
	Cache    *cache.Cache
	Pins     *pin.Manager
	Logger   zerolog.Logger
}

// Store owns the in-memory file list for one owner and is the only
// component that mutates FileRecords. Every mutation rewrites the whole
// snapshot: the registry blob is copy-on-write, and the pointer replace is
// last-write-wins with no merge across racing sessions.
type Store struct {
	mu  sync.RWMutex
	reg *Registry

	// degraded marks a session whose snapshot exists but could not be
	// fetched. Such a session must never commit: its empty view would
	// replace the pointer and orphan the real snapshot.
	degraded bool

	pointers pointer.Store
	blobs    blob.Store
	fetcher  Fetcher
	cache    *cache.Cache
	pins     *pin.Manager
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	// background runs fire-and-forget commits; replaced in tests to make
	// them synchronous.
	background func(op string, fn func())
	bg         sync.WaitGroup
}

// NewStore creates a registry store.
func NewStore(deps Deps) *Store {
	s := &Store{
		reg:      Empty(""),
		pointers: deps.Pointers,
		blobs:    deps.Blobs,
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		pins:     deps.Pins,
		logger:   deps.Logger,
		metrics:  metrics.Init(nil),
	}
	s.background = func(op string, fn func()) {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			fn()
		}()
	}
	return s
}

// Flush blocks until in-flight background commits have finished.
// Short-lived callers drain before exiting so fire-and-forget writes are
// not lost to process termination.
func (s *Store) Flush() {
	s.bg.Wait()
}

// Load reads the pointer for ownerID and fetches the registry snapshot it
// names. An absent pointer is a first session: the store starts empty with
// no error. A retrieval failure also starts empty but surfaces a
// recoverable error, since the snapshot still exists and only the fetch
// failed. A snapshot written for a different owner is rejected outright.
func (s *Store) Load(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reg = Empty(ownerID)
	s.degraded = false

	ptr, err := s.pointers.Get(ctx, ownerID)
	if errors.Is(err, pointer.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.degraded = true
		return faults.Wrap(faults.MetadataStore, "read registry pointer", err)
	}

	data, err := s.fetcher.Fetch(ctx, ptr.RegistryContentID)
	if err != nil {
		// The snapshot is intact on the network; only this read failed.
		// The session keeps its empty view for browsing, but commits are
		// refused so the empty view can never replace the real snapshot.
		s.degraded = true
		return faults.Wrap(faults.StorageNetwork, "fetch registry snapshot", err)
	}

	reg, err := Unmarshal(data)
	if err != nil {
		return err
	}
	if reg.OwnerID != ownerID {
		return faults.New(faults.Validation, "owner_mismatch",
			fmt.Sprintf("registry snapshot belongs to %q, expected %q", reg.OwnerID, ownerID))
	}

	s.reg = reg
	s.logger.Info().Str("owner", ownerID).Int("files", len(reg.Files)).Msg("registry loaded")
	return nil
}

// Commit stamps, serializes, and writes the full current file list as a
// new immutable blob, then replaces the pointer wholesale.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx)
}

func (s *Store) commitLocked(ctx context.Context) error {
	if s.reg.OwnerID == "" {
		return faults.New(faults.Validation, "", "no registry loaded")
	}
	if s.degraded {
		return faults.New(faults.Validation, "degraded_view",
			"registry snapshot could not be loaded; refusing to overwrite it with this session's view")
	}
	if err := ValidateFiles(s.reg.Files); err != nil {
		return err
	}

	s.reg.LastUpdated = time.Now().UnixMilli()
	data, err := s.reg.Marshal()
	if err != nil {
		return err
	}

	contentID, err := s.blobs.Put(ctx, data)
	if err != nil {
		s.metrics.CommitErrors.Inc()
		return faults.Wrap(faults.StorageNetwork, "write registry snapshot", err)
	}

	err = s.pointers.Set(ctx, &pointer.Pointer{
		OwnerID:           s.reg.OwnerID,
		RegistryContentID: contentID,
		LastUpdated:       s.reg.LastUpdated,
	})
	if err != nil {
		s.metrics.CommitErrors.Inc()
		return faults.Wrap(faults.MetadataStore, "replace registry pointer", err)
	}

	s.metrics.Commits.Inc()
	s.logger.Debug().Str("owner", s.reg.OwnerID).Str("cid", contentID).Int("files", len(s.reg.Files)).Msg("registry committed")
	return nil
}

// commitInBackground runs a commit without blocking the caller. Callers
// that must not lose the write drain it with Flush before exiting;
// a commit failure is logged, never surfaced to the user.
func (s *Store) commitInBackground(op string) {
	s.background(op, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Commit(ctx); err != nil {
			s.logger.Debug().Str("operation", op).Err(err).Msg("background commit failed")
		}
	})
}

// OwnerID returns the owner the store is loaded for.
func (s *Store) OwnerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.OwnerID
}

// Files returns a snapshot copy of the current file list.
func (s *Store) Files() []*FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*FileRecord, len(s.reg.Files))
	copy(out, s.reg.Files)
	return out
}

// Record returns the record with the given id, reading through the local
// cache when possible.
func (s *Store) Record(id string) (*FileRecord, bool) {
	if s.cache != nil {
		if entry, ok := s.cache.Get(id); ok {
			s.metrics.CacheHits.Inc()
			var rec FileRecord
			if json.Unmarshal(entry.Metadata, &rec) == nil {
				return &rec, true
			}
		}
		s.metrics.CacheMisses.Inc()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.findLocked(id)
	if rec == nil {
		return nil, false
	}
	s.cacheRecordLocked(rec)
	return rec, true
}

// FetchContent retrieves a file's bytes through the gateways, preferring
// session-cached content.
func (s *Store) FetchContent(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	rec := s.findLocked(id)
	s.mu.RUnlock()

	if rec == nil {
		return nil, faults.New(faults.Validation, "not_found", fmt.Sprintf("no record with id %s", id))
	}
	if rec.IsFolder {
		return nil, faults.New(faults.Validation, "", fmt.Sprintf("%q is a folder", rec.Name))
	}

	if s.cache != nil {
		if entry, ok := s.cache.Get(id); ok && entry.Content != nil {
			s.metrics.CacheHits.Inc()
			return entry.Content, nil
		}
	}

	data, err := s.fetcher.Fetch(ctx, rec.ContentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if meta, merr := json.Marshal(rec); merr == nil {
			s.cache.Set(id, meta, data)
		}
	}
	s.MarkAccessed(id)
	return data, nil
}

// MarkAccessed bumps a record's last-accessed stamp and commits in the
// background; the caller never waits on it.
func (s *Store) MarkAccessed(id string) {
	s.mu.Lock()
	rec := s.findLocked(id)
	if rec == nil {
		s.mu.Unlock()
		return
	}
	rec.Timestamps.LastAccessedAt = nowMs()
	s.mu.Unlock()

	s.commitInBackground("mark_accessed")
}

// findLocked returns the record with id, or nil.
func (s *Store) findLocked(id string) *FileRecord {
	for _, f := range s.reg.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// cacheRecordLocked refreshes the cache entry for rec, keeping any
// session-cached content.
func (s *Store) cacheRecordLocked(rec *FileRecord) {
	if s.cache == nil {
		return
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return
	}
	var content []byte
	if entry, ok := s.cache.Get(rec.ID); ok {
		content = entry.Content
	}
	s.cache.Set(rec.ID, meta, content)
}
