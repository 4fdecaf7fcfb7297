package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// fakeRanker is a test double for the gateway optimizer.
type fakeRanker struct {
	mu        sync.Mutex
	urls      []string
	successes []string
	failures  []string
}

func (f *fakeRanker) URLs() []string { return f.urls }

func (f *fakeRanker) RecordSuccess(url string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, url)
}

func (f *fakeRanker) RecordFailure(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, url)
}

func newTestEngine(ranker Ranker) *Engine {
	return New(Options{
		Ranker:         ranker,
		MaxRetries:     2,
		AttemptTimeout: 100 * time.Millisecond,
		BackoffUnit:    time.Millisecond,
	})
}

func TestFetch_FirstGatewaySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmTest", r.URL.Path)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	ranker := &fakeRanker{urls: []string{srv.URL + "/ipfs/"}}
	e := newTestEngine(ranker)

	data, err := e.Fetch(context.Background(), "ipfs://QmTest")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Len(t, ranker.successes, 1)
	assert.Empty(t, ranker.failures)
}

func TestFetch_FailoverOnTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond) // beyond the attempt timeout
	}))
	defer slow.Close()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from gateway two"))
	}))
	defer fast.Close()

	ranker := &fakeRanker{urls: []string{slow.URL + "/ipfs/", fast.URL + "/ipfs/"}}
	e := newTestEngine(ranker)

	data, err := e.Fetch(context.Background(), "QmTest")
	require.NoError(t, err)
	assert.Equal(t, []byte("from gateway two"), data)

	assert.Equal(t, []string{fast.URL + "/ipfs/"}, ranker.successes)
	require.GreaterOrEqual(t, len(ranker.failures), 1)
	assert.Equal(t, slow.URL+"/ipfs/", ranker.failures[0])
}

func TestFetch_404TriedExactlyOnce(t *testing.T) {
	var notFoundHits atomic.Int32
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFoundHits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("found elsewhere"))
	}))
	defer ok.Close()

	ranker := &fakeRanker{urls: []string{notFound.URL + "/ipfs/", ok.URL + "/ipfs/"}}
	e := newTestEngine(ranker)

	data, err := e.Fetch(context.Background(), "QmTest")
	require.NoError(t, err)
	assert.Equal(t, []byte("found elsewhere"), data)
	assert.Equal(t, int32(1), notFoundHits.Load(), "404 gateway must not be retried")
}

func TestFetch_5xxRetriedBeforeFailover(t *testing.T) {
	var hits atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("second try"))
	}))
	defer flaky.Close()

	ranker := &fakeRanker{urls: []string{flaky.URL + "/ipfs/"}}
	e := newTestEngine(ranker)

	data, err := e.Fetch(context.Background(), "QmTest")
	require.NoError(t, err)
	assert.Equal(t, []byte("second try"), data)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ConnectionRefusedAbandonsImmediately(t *testing.T) {
	// Reserve an address with no listener behind it
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alive"))
	}))
	defer ok.Close()

	ranker := &fakeRanker{urls: []string{deadURL + "/ipfs/", ok.URL + "/ipfs/"}}
	e := newTestEngine(ranker)

	data, err := e.Fetch(context.Background(), "QmTest")
	require.NoError(t, err)
	assert.Equal(t, []byte("alive"), data)
	assert.Equal(t, []string{deadURL + "/ipfs/"}, ranker.failures)
}

func TestFetch_AllGatewaysExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ranker := &fakeRanker{urls: []string{srv.URL + "/a/ipfs/", srv.URL + "/b/ipfs/"}}
	e := newTestEngine(ranker)

	_, err := e.Fetch(context.Background(), "QmTest")
	require.Error(t, err)

	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, faults.StorageNetwork, fe.Category)
	assert.Len(t, ranker.failures, 2)
}
