package cache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// offlineBody is the synthetic response body when neither network nor
// cache can serve a request.
const offlineBody = "Network unavailable"

// offlinePagePath is the pre-cached fallback page served for failed
// navigations.
const offlinePagePath = "/offline"

// Fetcher performs the upstream request for the gateway. Injectable so
// tests can simulate offline conditions.
type Fetcher func(r *http.Request) (*http.Response, error)

// Gateway intercepts GET requests and serves them through the
// configured caching strategy. Non-intercepted requests are proxied
// straight to the upstream without caching.
type Gateway struct {
	store      Store
	classifier *Classifier
	fetch      Fetcher
}

// NewGateway creates a Gateway. A nil fetch uses the default transport.
func NewGateway(store Store, classifier *Classifier, fetch Fetcher) *Gateway {
	if fetch == nil {
		fetch = func(r *http.Request) (*http.Response, error) {
			return http.DefaultTransport.RoundTrip(r)
		}
	}
	return &Gateway{store: store, classifier: classifier, fetch: fetch}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.classifier.Intercepts(r) {
		g.passthrough(w, r)
		return
	}

	decision := g.classifier.Classify(r)
	switch decision.Strategy {
	case CacheFirst:
		g.cacheFirst(w, r, decision.Cache)
	case NetworkFirst:
		g.networkFirst(w, r, decision.Cache)
	case StaleWhileRevalidate:
		g.staleWhileRevalidate(w, r, decision.Cache)
	}
}

// cacheFirst returns the cached response if present; otherwise fetches,
// caches successful responses, and returns. Total failure yields a
// synthetic 503.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request, cacheName string) {
	key := cacheKey(r)

	cached, ok, err := g.store.Get(r.Context(), cacheName, key)
	if err != nil {
		slog.Warn("Cache read failed", "cache", cacheName, "key", key, "error", err)
	}
	if ok {
		writeCached(w, cached)
		return
	}

	resp, err := g.fetchAndCache(r, cacheName, key)
	if err != nil {
		writeSyntheticUnavailable(w)
		return
	}
	writeCached(w, resp)
}

// networkFirst attempts the network, falling back to cache, then to
// the pre-cached offline page for navigations, then to a synthetic 503.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request, cacheName string) {
	key := cacheKey(r)

	resp, err := g.fetchAndCache(r, cacheName, key)
	if err == nil {
		writeCached(w, resp)
		return
	}

	cached, ok, cacheErr := g.store.Get(r.Context(), cacheName, key)
	if cacheErr != nil {
		slog.Warn("Cache read failed", "cache", cacheName, "key", key, "error", cacheErr)
	}
	if ok {
		writeCached(w, cached)
		return
	}

	if isNavigation(r) {
		offline, ok, _ := g.store.Get(r.Context(), CacheCore, offlinePagePath)
		if ok {
			writeCached(w, offline)
			return
		}
	}

	writeSyntheticUnavailable(w)
}

// staleWhileRevalidate serves the cached response immediately when
// present and refreshes the cache in the background; without a cached
// entry the caller waits on the network.
func (g *Gateway) staleWhileRevalidate(w http.ResponseWriter, r *http.Request, cacheName string) {
	key := cacheKey(r)

	cached, ok, err := g.store.Get(r.Context(), cacheName, key)
	if err != nil {
		slog.Warn("Cache read failed", "cache", cacheName, "key", key, "error", err)
	}
	if ok {
		// Revalidate with a detached context; the client response must
		// not wait on it.
		refreshReq := r.Clone(context.WithoutCancel(r.Context()))
		go func() {
			if _, err := g.fetchAndCache(refreshReq, cacheName, key); err != nil {
				slog.Debug("Background revalidation failed", "key", key, "error", err)
			}
		}()
		writeCached(w, cached)
		return
	}

	resp, err := g.fetchAndCache(r, cacheName, key)
	if err != nil {
		writeSyntheticUnavailable(w)
		return
	}
	writeCached(w, resp)
}

// fetchAndCache performs the upstream request and stores successful
// (2xx) responses.
func (g *Gateway) fetchAndCache(r *http.Request, cacheName, key string) (*CachedResponse, error) {
	resp, err := g.fetch(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cached := &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := g.store.Put(r.Context(), cacheName, key, cached); err != nil {
			slog.Warn("Cache write failed", "cache", cacheName, "key", key, "error", err)
		}
	}

	return cached, nil
}

// passthrough proxies a non-intercepted request without caching.
func (g *Gateway) passthrough(w http.ResponseWriter, r *http.Request) {
	resp, err := g.fetch(r)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Debug("Passthrough copy failed", "error", err)
	}
}

// Precache fetches the fixed static asset list into their classified
// caches. Called once at install/startup; individual failures are
// logged and skipped.
func (g *Gateway) Precache(ctx context.Context, baseURL string, paths []string) {
	client := &http.Client{Timeout: 30 * time.Second}
	for _, p := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+p, nil)
		if err != nil {
			slog.Warn("Precache request failed", "path", p, "error", err)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			slog.Warn("Precache fetch failed", "path", p, "error", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Warn("Precache skipped", "path", p, "status", resp.StatusCode)
			continue
		}

		decision := g.classifier.Classify(req)
		cached := &CachedResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
		if err := g.store.Put(ctx, decision.Cache, p, cached); err != nil {
			slog.Warn("Precache store failed", "path", p, "error", err)
		}
	}
}

// Activate evicts every cache whose name is not in the current set.
// Called once at startup after a deploy bumps the cache versions.
func (g *Gateway) Activate(ctx context.Context) error {
	names, err := g.store.Caches(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(CurrentCaches))
	for _, name := range CurrentCaches {
		current[name] = true
	}

	for _, name := range names {
		if current[name] {
			continue
		}
		if err := g.store.DropCache(ctx, name); err != nil {
			return err
		}
		slog.Info("Evicted stale cache", "cache", name)
	}
	return nil
}

func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func writeCached(w http.ResponseWriter, resp *CachedResponse) {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func writeSyntheticUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.Copy(w, bytes.NewBufferString(offlineBody))
}
