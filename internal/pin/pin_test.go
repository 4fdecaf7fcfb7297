package pin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/faults"
)

func TestLocal_AlwaysSucceeds(t *testing.T) {
	p := NewLocal()
	ctx := context.Background()

	r, err := p.PinByHash(ctx, "ipfs://QmAbc", Metadata{Name: "a.txt"})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "QmAbc", r.ContentID)

	u, err := p.Unpin(ctx, "QmAbc")
	require.NoError(t, err)
	assert.True(t, u.Success)

	s, err := p.Status(ctx, "QmAbc")
	require.NoError(t, err)
	assert.True(t, s.IsPinned)
	assert.Equal(t, "local", s.Provider)
}

func TestHTTPProvider_RequiresCredentials(t *testing.T) {
	_, err := NewHTTPProvider("acme", "https://pin.example.com", "", "secret")
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.Validation, fe.Category)
	assert.False(t, faults.Retryable(err), "missing credentials must not be retried")
}

func TestHTTPProvider_PinByHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pins", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Secret"))
		_, _ = w.Write([]byte(`{"success":true,"hash":"QmAbc","sizeBytes":1234,"timestamp":1700000000000}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("acme", srv.URL, "key", "secret")
	require.NoError(t, err)

	r, err := p.PinByHash(context.Background(), "ipfs://QmAbc", Metadata{Name: "a.txt"})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "QmAbc", r.ContentID)
	assert.Equal(t, int64(1234), r.SizeBytes)
	assert.False(t, r.PinnedAt.IsZero())
}

func TestHTTPProvider_MapsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"hash is not reachable"}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("acme", srv.URL, "key", "secret")
	require.NoError(t, err)

	_, err = p.PinByHash(context.Background(), "QmGone", Metadata{})
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.Pinning, fe.Category)
	assert.Contains(t, fe.Message, "hash is not reachable")
}

func TestHTTPProvider_BadCredentialsAreAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("acme", srv.URL, "key", "wrong")
	require.NoError(t, err)

	_, err = p.PinByHash(context.Background(), "QmAbc", Metadata{})
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.Auth, fe.Category)
}

func TestHTTPProvider_UnpinAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/unpin/QmAbc":
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodGet && r.URL.Path == "/pin-status":
			assert.Equal(t, "QmAbc", r.URL.Query().Get("hash"))
			_, _ = w.Write([]byte(`{"isPinned":true,"pinnedAt":1700000000000,"sizeBytes":99}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := NewHTTPProvider("acme", srv.URL, "key", "secret")
	require.NoError(t, err)
	ctx := context.Background()

	u, err := p.Unpin(ctx, "QmAbc")
	require.NoError(t, err)
	assert.True(t, u.Success)

	s, err := p.Status(ctx, "QmAbc")
	require.NoError(t, err)
	assert.True(t, s.IsPinned)
	require.NotNil(t, s.PinnedAt)
	assert.Equal(t, int64(99), s.SizeBytes)
	assert.Equal(t, "acme", s.Provider)
}

func TestManager_PinFileDelegates(t *testing.T) {
	m := NewManager(NewLocal(), zerolog.Nop())

	r, err := m.PinFile(context.Background(), []byte("content"), Metadata{Name: "f"})
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, "local", m.ProviderName())
}
