package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// countingFetcher serves canned responses and counts upstream hits;
// offline mode fails every fetch.
type countingFetcher struct {
	calls   atomic.Int64
	offline atomic.Bool

	mu   sync.Mutex
	body string
}

func (f *countingFetcher) fetch(r *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if f.offline.Load() {
		return nil, errors.New("dial tcp: network is unreachable")
	}
	f.mu.Lock()
	body := f.body
	f.mu.Unlock()
	return okResponse(body), nil
}

func (f *countingFetcher) setBody(body string) {
	f.mu.Lock()
	f.body = body
	f.mu.Unlock()
}

func get(t *testing.T, g *Gateway, path, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestGatewayOfflineSynthetic503(t *testing.T) {
	fetcher := &countingFetcher{body: "live"}
	fetcher.offline.Store(true)
	g := NewGateway(NewMemoryStore(), DefaultClassifier(), fetcher.fetch)

	w := get(t, g, "/api/messages", "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, offlineBody, w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestGatewayNetworkFirst(t *testing.T) {
	store := NewMemoryStore()
	fetcher := &countingFetcher{body: "fresh api data"}
	g := NewGateway(store, DefaultClassifier(), fetcher.fetch)

	t.Run("online response is cached", func(t *testing.T) {
		w := get(t, g, "/api/messages", "application/json")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "fresh api data", w.Body.String())

		_, ok, err := store.Get(context.Background(), CacheDynamic, "/api/messages")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("offline falls back to the cached copy", func(t *testing.T) {
		fetcher.offline.Store(true)
		w := get(t, g, "/api/messages", "application/json")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "fresh api data", w.Body.String())
	})

	t.Run("offline navigation without cache serves the offline page", func(t *testing.T) {
		require.NoError(t, store.Put(context.Background(), CacheCore, offlinePagePath, &CachedResponse{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       []byte("you are offline"),
		}))

		w := get(t, g, "/api/briefing", "text/html")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "you are offline", w.Body.String())
	})
}

func TestGatewayCacheFirst(t *testing.T) {
	store := NewMemoryStore()
	fetcher := &countingFetcher{body: "static asset"}
	g := NewGateway(store, DefaultClassifier(), fetcher.fetch)

	w := get(t, g, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	// Second request is served from cache without touching upstream.
	w = get(t, g, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "static asset", w.Body.String())
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestGatewayStaleWhileRevalidate(t *testing.T) {
	store := NewMemoryStore()
	fetcher := &countingFetcher{body: "rendered dashboard"}
	g := NewGateway(store, DefaultClassifier(), fetcher.fetch)

	// First visit populates the dynamic cache from the network.
	w := get(t, g, "/dashboard", "text/html")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rendered dashboard", w.Body.String())

	t.Run("cached page short-circuits while offline", func(t *testing.T) {
		fetcher.offline.Store(true)
		w := get(t, g, "/dashboard", "text/html")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "rendered dashboard", w.Body.String(), "stale copy served immediately")
	})

	t.Run("background revalidation refreshes the cache", func(t *testing.T) {
		fetcher.offline.Store(false)
		fetcher.setBody("updated dashboard")

		w := get(t, g, "/dashboard", "text/html")
		assert.Equal(t, "rendered dashboard", w.Body.String(), "request serves the stale copy")

		require.Eventually(t, func() bool {
			cached, ok, _ := store.Get(context.Background(), CacheDynamic, "/dashboard")
			return ok && string(cached.Body) == "updated dashboard"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("uncached page waits on the network", func(t *testing.T) {
		w := get(t, g, "/settings", "text/html")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "updated dashboard", w.Body.String())
	})
}

func TestGatewayOnly2xxCached(t *testing.T) {
	store := NewMemoryStore()
	g := NewGateway(store, DefaultClassifier(), func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("boom")),
		}, nil
	})

	w := get(t, g, "/api/messages", "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	_, ok, err := store.Get(context.Background(), CacheDynamic, "/api/messages")
	require.NoError(t, err)
	assert.False(t, ok, "error responses never enter the cache")
}

func TestGatewayPassthrough(t *testing.T) {
	fetcher := &countingFetcher{body: "posted"}
	store := NewMemoryStore()
	g := NewGateway(store, DefaultClassifier(), fetcher.fetch)

	req := httptest.NewRequest("POST", "/api/messages", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, ok, _ := store.Get(context.Background(), CacheDynamic, "/api/messages")
	assert.False(t, ok, "passthrough never caches")
}

func TestGatewayActivateEvictsStaleCaches(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stale := "napoleon-ai-v0"
	entry := &CachedResponse{StatusCode: http.StatusOK, Body: []byte("old")}
	require.NoError(t, store.Put(ctx, stale, "/", entry))
	require.NoError(t, store.Put(ctx, CacheCore, "/", entry))

	g := NewGateway(store, DefaultClassifier(), nil)
	require.NoError(t, g.Activate(ctx))

	_, ok, _ := store.Get(ctx, stale, "/")
	assert.False(t, ok, "stale versioned cache dropped")
	_, ok, _ = store.Get(ctx, CacheCore, "/")
	assert.True(t, ok, "current cache untouched")
}

func TestGatewayPrecache(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("precached " + r.URL.Path))
	}))
	defer upstream.Close()

	store := NewMemoryStore()
	g := NewGateway(store, DefaultClassifier(), nil)
	g.Precache(context.Background(), upstream.URL, []string{"/", "/offline", "/missing"})

	ctx := context.Background()
	cached, ok, _ := store.Get(ctx, CacheCore, "/")
	require.True(t, ok)
	assert.Equal(t, "precached /", string(cached.Body))

	_, ok, _ = store.Get(ctx, CacheCore, "/offline")
	assert.True(t, ok)

	_, ok, _ = store.Get(ctx, CacheCore, "/missing")
	assert.False(t, ok, "non-2xx responses are skipped")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, CacheCore, "/nope")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := &CachedResponse{StatusCode: 200, Body: []byte("hello")}
	require.NoError(t, store.Put(ctx, CacheCore, "/hello", entry))

	got, ok, err := store.Get(ctx, CacheCore, "/hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got.Body)

	names, err := store.Caches(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, CacheCore)

	require.NoError(t, store.DropCache(ctx, CacheCore))
	_, ok, _ = store.Get(ctx, CacheCore, "/hello")
	assert.False(t, ok)
}
