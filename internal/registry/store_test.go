package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/blob"
	"github.com/hashdrive/hashdrive/internal/cache"
	"github.com/hashdrive/hashdrive/internal/faults"
	"github.com/hashdrive/hashdrive/internal/kv"
	"github.com/hashdrive/hashdrive/internal/pin"
	"github.com/hashdrive/hashdrive/internal/pointer"
)

// casFetcher serves fetches straight from the local blob store, standing
// in for the gateway retrieval engine.
type casFetcher struct {
	cas *blob.CAS
}

func (f *casFetcher) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	return f.cas.Get(ctx, contentID)
}

// failingFetcher always fails, simulating an unreachable network.
type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("timeout: all gateways exhausted")
}

// countingProvider tracks pin provider calls.
type countingProvider struct {
	mu     sync.Mutex
	pins   int
	unpins int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) PinFile(_ context.Context, data []byte, _ pin.Metadata) (*pin.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins++
	return &pin.Result{Success: true, SizeBytes: int64(len(data)), PinnedAt: time.Now()}, nil
}

func (p *countingProvider) PinByHash(_ context.Context, contentID string, _ pin.Metadata) (*pin.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins++
	return &pin.Result{Success: true, ContentID: contentID, PinnedAt: time.Now()}, nil
}

func (p *countingProvider) Unpin(context.Context, string) (*pin.UnpinResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unpins++
	return &pin.UnpinResult{Success: true}, nil
}

func (p *countingProvider) Status(context.Context, string) (*pin.Status, error) {
	return &pin.Status{}, nil
}

type testEnv struct {
	store    *Store
	pointers pointer.Store
	cas      *blob.CAS
	provider *countingProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cas, err := blob.NewCAS(t.TempDir())
	require.NoError(t, err)

	provider := &countingProvider{}
	env := &testEnv{
		pointers: pointer.NewKVStore(kv.NewMemory()),
		cas:      cas,
		provider: provider,
	}
	env.store = NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    cas,
		Fetcher:  &casFetcher{cas: cas},
		Cache:    cache.New(cache.Options{}),
		Pins:     pin.NewManager(provider, zerolog.Nop()),
		Logger:   zerolog.Nop(),
	})
	// Run fire-and-forget commits inline so tests observe them.
	env.store.background = func(op string, fn func()) { fn() }
	return env
}

func (e *testEnv) load(t *testing.T, owner string) {
	t.Helper()
	require.NoError(t, e.store.Load(context.Background(), owner))
}

func TestLoad_NoPointerStartsEmpty(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Load(context.Background(), "owner-1"))
	assert.Empty(t, env.store.Files())
	assert.Equal(t, "owner-1", env.store.OwnerID())
}

func TestCommitLoad_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	folder, err := env.store.CreateFolder(ctx, "docs", "")
	require.NoError(t, err)
	file, err := env.store.AddFile(ctx, "notes.txt", folder.ID, "text/plain", []byte("hello"))
	require.NoError(t, err)

	// A second store over the same backends sees the same list
	other := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, other.Load(ctx, "owner-1"))

	files := other.Files()
	require.Len(t, files, 2)

	got, ok := other.Record(file.ID)
	require.True(t, ok)
	assert.Equal(t, "notes.txt", got.Name)
	assert.Equal(t, file.ContentID, got.ContentID)
	assert.Equal(t, folder.ID, got.ParentID)
	require.Len(t, got.Versions, 1)
	assert.Equal(t, 1, got.Versions[0].VersionNumber)
}

func TestLoad_RetrievalFailureIsRecoverable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	_, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	// Same pointer store, but the network is gone
	broken := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  failingFetcher{},
		Logger:   zerolog.Nop(),
	})
	err = broken.Load(ctx, "owner-1")
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.StorageNetwork, fe.Category)
	assert.True(t, faults.Retryable(err), "a failed snapshot fetch is worth retrying")

	// The store is usable, just empty: the data was not destroyed
	assert.Empty(t, broken.Files())
}

func TestLoad_DegradedSessionRefusesCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	// A session that cannot fetch the snapshot falls back to an empty view...
	broken := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  failingFetcher{},
		Logger:   zerolog.Nop(),
	})
	require.Error(t, broken.Load(ctx, "owner-1"))

	// ...and must never publish that view over the real snapshot.
	_, err = broken.AddFile(ctx, "b.txt", "", "text/plain", []byte("b"))
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "degraded_view", fe.Code)
	assert.False(t, faults.Retryable(err))

	require.Error(t, broken.Commit(ctx))

	// The original file survives for a healthy session
	reader := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, reader.Load(ctx, "owner-1"))
	got, ok := reader.Record(file.ID)
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Name)
}

func TestLoad_OwnerMismatchIsHardError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")
	_, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	// Point owner-2's pointer at owner-1's snapshot
	p1, err := env.pointers.Get(ctx, "owner-1")
	require.NoError(t, err)
	require.NoError(t, env.pointers.Set(ctx, &pointer.Pointer{
		OwnerID:           "owner-2",
		RegistryContentID: p1.RegistryContentID,
		LastUpdated:       p1.LastUpdated,
	}))

	victim := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	err = victim.Load(ctx, "owner-2")
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.Validation, fe.Category)
	assert.Equal(t, "owner_mismatch", fe.Code)
	assert.False(t, faults.Retryable(err))
	assert.Empty(t, victim.Files())
}

func TestCommit_LastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")
	_, err := env.store.AddFile(ctx, "first.txt", "", "text/plain", []byte("1"))
	require.NoError(t, err)

	// A second session loads the same state, then both commit
	second := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, second.Load(ctx, "owner-1"))
	_, err = second.AddFile(ctx, "second.txt", "", "text/plain", []byte("2"))
	require.NoError(t, err)

	_, err = env.store.AddFile(ctx, "third.txt", "", "text/plain", []byte("3"))
	require.NoError(t, err)

	// The later commit's view wins wholesale; second.txt is clobbered
	reader := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, reader.Load(ctx, "owner-1"))

	names := make(map[string]bool)
	for _, f := range reader.Files() {
		names[f.Name] = true
	}
	assert.True(t, names["first.txt"])
	assert.True(t, names["third.txt"])
	assert.False(t, names["second.txt"])
}

func TestRename_UpdatesAndLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "draft.txt", "", "text/plain", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, env.store.Rename(ctx, file.ID, "final.txt"))

	got, ok := env.store.Record(file.ID)
	require.True(t, ok)
	assert.Equal(t, "final.txt", got.Name)
	require.NotEmpty(t, got.ActivityLog)
	assert.Equal(t, "renamed", got.ActivityLog[0].Action)
}

func TestMove_RejectsCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	outer, err := env.store.CreateFolder(ctx, "outer", "")
	require.NoError(t, err)
	inner, err := env.store.CreateFolder(ctx, "inner", outer.ID)
	require.NoError(t, err)

	err = env.store.Move(ctx, outer.ID, inner.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "its own subtree")

	// Moving the inner folder to root is fine
	require.NoError(t, env.store.Move(ctx, inner.ID, ""))
}

func TestTrashRestoreDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	require.NoError(t, env.store.Trash(ctx, file.ID))
	require.Len(t, env.store.Trashed(), 1)
	assert.Empty(t, env.store.FolderContents(""))

	require.NoError(t, env.store.Restore(ctx, file.ID))
	assert.Empty(t, env.store.Trashed())
	assert.Len(t, env.store.FolderContents(""), 1)

	require.NoError(t, env.store.DeletePermanently(ctx, file.ID))
	assert.Empty(t, env.store.Files())
}

func TestDeletePermanently_RefusesNonEmptyFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	folder, err := env.store.CreateFolder(ctx, "docs", "")
	require.NoError(t, err)
	_, err = env.store.AddFile(ctx, "a.txt", folder.ID, "text/plain", []byte("a"))
	require.NoError(t, err)

	err = env.store.DeletePermanently(ctx, folder.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")
}

func TestAddVersion_ContiguousAndCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("v1"))
	require.NoError(t, err)

	v2, err := env.store.AddVersion(ctx, file.ID, []byte("version two"), "second draft")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	v3, err := env.store.AddVersion(ctx, file.ID, []byte("version three!"), "")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)

	got, ok := env.store.Record(file.ID)
	require.True(t, ok)
	require.Len(t, got.Versions, 3)
	assert.Equal(t, got.ContentID, got.Versions[2].ContentID)
	assert.Equal(t, int64(len("version three!")), got.SizeBytes)

	// The snapshot round-trips with history intact
	reader := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, reader.Load(ctx, "owner-1"))
	again, ok := reader.Record(file.ID)
	require.True(t, ok)
	assert.Len(t, again.Versions, 3)
}

func TestPin_IdempotenceGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	// Unpinning an unpinned file returns false without provider contact
	ok, err := env.store.Unpin(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, env.provider.unpins)

	ok, err = env.store.Pin(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, env.provider.pins)

	// Pinning again is a caller-side no-op
	ok, err = env.store.Pin(ctx, file.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, env.provider.pins)

	got, _ := env.store.Record(file.ID)
	assert.True(t, got.Pin.IsPinned)
	assert.Equal(t, "counting", got.Pin.Provider)

	ok, err = env.store.Unpin(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, env.provider.unpins)

	got, _ = env.store.Record(file.ID)
	assert.False(t, got.Pin.IsPinned)
}

func TestToggleStar_CommitsInBackground(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	starred, err := env.store.ToggleStar(file.ID)
	require.NoError(t, err)
	assert.True(t, starred)

	// The background commit (inline in tests) already landed
	reader := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, reader.Load(ctx, "owner-1"))
	got, ok := reader.Record(file.ID)
	require.True(t, ok)
	assert.True(t, got.Flags.Starred)
}

func TestFlush_DrainsBackgroundCommits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	// A store with the real asynchronous commit path, as the CLI wires it
	session := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, session.Load(ctx, "owner-1"))

	starred, err := session.ToggleStar(file.ID)
	require.NoError(t, err)
	assert.True(t, starred)

	// Flush must not return before the write has landed: a fresh session
	// started afterwards sees the star.
	session.Flush()

	reader := NewStore(Deps{
		Pointers: env.pointers,
		Blobs:    env.cas,
		Fetcher:  &casFetcher{cas: env.cas},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, reader.Load(ctx, "owner-1"))
	got, ok := reader.Record(file.ID)
	require.True(t, ok)
	assert.True(t, got.Flags.Starred)
}

func TestFetchContent_UsesCacheSecondTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("cached body"))
	require.NoError(t, err)

	first, err := env.store.FetchContent(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached body"), first)

	// Swap in a dead fetcher; the session cache must still serve the bytes
	env.store.fetcher = failingFetcher{}
	second, err := env.store.FetchContent(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached body"), second)
}

func TestTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.load(t, "owner-1")

	file, err := env.store.AddFile(ctx, "a.txt", "", "text/plain", []byte("a"))
	require.NoError(t, err)

	require.NoError(t, env.store.Tag(ctx, file.ID, "work"))
	require.NoError(t, env.store.Tag(ctx, file.ID, "draft"))
	require.NoError(t, env.store.Tag(ctx, file.ID, "work")) // duplicate

	got, _ := env.store.Record(file.ID)
	assert.Equal(t, []string{"draft", "work"}, got.Tags)

	require.NoError(t, env.store.Untag(ctx, file.ID, "draft"))
	got, _ = env.store.Record(file.ID)
	assert.Equal(t, []string{"work"}, got.Tags)
}
