package cache

import (
	"net/http"
	"path"
	"strings"
)

// Strategy selects how a request is served against the cache.
type Strategy int

const (
	CacheFirst Strategy = iota
	NetworkFirst
	StaleWhileRevalidate
)

// Decision is the outcome of classifying one request.
type Decision struct {
	Strategy Strategy
	Cache    string
}

// Classifier routes requests to strategies. First match wins, in this
// priority order: critical assets, API calls, static assets, then
// everything else presumed to be a navigable page.
type Classifier struct {
	// CriticalAssets are exact paths or wildcard-suffix patterns
	// ("*.woff2") that must stay available offline.
	CriticalAssets []string
	// APIHosts are known third-party API hostnames treated like /api/
	// paths.
	APIHosts         []string
	StaticPrefixes   []string
	StaticExtensions []string
	// AllowedOrigins are the external hosts the gateway intercepts at
	// all; anything else passes through untouched.
	AllowedOrigins []string
}

// DefaultClassifier returns the production routing table.
func DefaultClassifier() *Classifier {
	return &Classifier{
		CriticalAssets: []string{
			"/",
			"/offline",
			"/manifest.json",
			"*.woff2",
		},
		APIHosts: []string{
			"api.openai.com",
			"api.clerk.dev",
		},
		StaticPrefixes: []string{
			"/static/",
			"/assets/",
			"/_next/static/",
		},
		StaticExtensions: []string{
			".js", ".css", ".png", ".jpg", ".jpeg", ".svg", ".gif", ".ico", ".webp", ".woff", ".woff2",
		},
		AllowedOrigins: []string{
			"api.openai.com",
			"api.clerk.dev",
		},
	}
}

// Intercepts reports whether the gateway handles this request at all.
// Non-GET requests and non-allow-listed external origins pass through
// to default handling.
func (c *Classifier) Intercepts(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	host := r.URL.Host
	if host == "" || host == r.Host {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if host == allowed {
			return true
		}
	}
	return false
}

// Classify picks the strategy and backing cache for a request.
func (c *Classifier) Classify(r *http.Request) Decision {
	p := r.URL.Path

	if c.isCritical(p) {
		return Decision{Strategy: CacheFirst, Cache: CacheCore}
	}

	if strings.HasPrefix(p, "/api/") || c.isAPIHost(r.URL.Host) {
		return Decision{Strategy: NetworkFirst, Cache: CacheDynamic}
	}

	if c.isStatic(p) {
		return Decision{Strategy: CacheFirst, Cache: CacheStatic}
	}

	if isNavigation(r) {
		return Decision{Strategy: StaleWhileRevalidate, Cache: CacheDynamic}
	}

	return Decision{Strategy: NetworkFirst, Cache: CacheDynamic}
}

func (c *Classifier) isCritical(p string) bool {
	for _, pattern := range c.CriticalAssets {
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(p, pattern[1:]) {
				return true
			}
			continue
		}
		if p == pattern {
			return true
		}
	}
	return false
}

func (c *Classifier) isAPIHost(host string) bool {
	for _, h := range c.APIHosts {
		if host == h {
			return true
		}
	}
	return false
}

func (c *Classifier) isStatic(p string) bool {
	for _, prefix := range c.StaticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range c.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// isNavigation treats requests negotiating for HTML as page loads.
func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
