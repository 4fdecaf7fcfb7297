package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/registry"
)

// writeTestConfig writes a minimal config backed entirely by local state and
// points the global --config flag at it for the duration of the test.
func writeTestConfig(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("owner_id: tester\ndata_dir: %s\nlog_level: error\n",
		filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

// Every command builds a fresh app, so state written in one invocation must
// load back in the next through the full production wiring: snapshots
// committed to the local blob store are read back from it, never routed out
// to a public gateway.
func TestApp_RegistrySurvivesAcrossSessions(t *testing.T) {
	writeTestConfig(t)
	ctx := context.Background()

	first, err := newApp(ctx)
	require.NoError(t, err)
	folder, err := first.store.CreateFolder(ctx, "docs", "")
	require.NoError(t, err)
	file, err := first.store.AddFile(ctx, "a.txt", folder.ID, "text/plain", []byte("hello across sessions"))
	require.NoError(t, err)
	first.store.Flush()

	second, err := newApp(ctx)
	require.NoError(t, err)
	require.Len(t, second.store.Files(), 2, "the snapshot must load back in a fresh session")

	got, ok := second.store.Record(file.ID)
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Name)
	assert.Equal(t, folder.ID, got.ParentID)

	data, err := second.store.FetchContent(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello across sessions"), data)

	starred, err := second.store.ToggleStar(file.ID)
	require.NoError(t, err)
	assert.True(t, starred)
	second.store.Flush()

	// Scan the loaded snapshot directly; Record would be satisfied by the
	// persisted cache even if the commit had been lost.
	third, err := newApp(ctx)
	require.NoError(t, err)
	var reloaded *registry.FileRecord
	for _, f := range third.store.Files() {
		if f.ID == file.ID {
			reloaded = f
		}
	}
	require.NotNil(t, reloaded)
	assert.True(t, reloaded.Flags.Starred, "the drained background commit must be visible to the next session")
}
