package cache

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPrecedence(t *testing.T) {
	c := DefaultClassifier()

	cases := []struct {
		name     string
		path     string
		accept   string
		strategy Strategy
		cache    string
	}{
		{"root is critical", "/", "text/html", CacheFirst, CacheCore},
		{"offline page is critical", "/offline", "text/html", CacheFirst, CacheCore},
		{"manifest is critical", "/manifest.json", "", CacheFirst, CacheCore},
		{"woff2 wildcard is critical", "/fonts/inter.woff2", "", CacheFirst, CacheCore},
		{"api path is network-first", "/api/messages", "application/json", NetworkFirst, CacheDynamic},
		{"static prefix is cache-first", "/static/app.js", "", CacheFirst, CacheStatic},
		{"static extension is cache-first", "/images/logo.png", "", CacheFirst, CacheStatic},
		{"navigation is stale-while-revalidate", "/dashboard", "text/html,application/xhtml+xml", StaleWhileRevalidate, CacheDynamic},
		{"unclassified falls back to network-first", "/websocket-poll", "", NetworkFirst, CacheDynamic},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.accept != "" {
				req.Header.Set("Accept", tc.accept)
			}
			d := c.Classify(req)
			assert.Equal(t, tc.strategy, d.Strategy)
			assert.Equal(t, tc.cache, d.Cache)
		})
	}

	t.Run("critical wins over static extension", func(t *testing.T) {
		// .woff2 is both a critical wildcard and a static extension;
		// the critical match must win.
		req := httptest.NewRequest("GET", "/static/inter.woff2", nil)
		d := c.Classify(req)
		assert.Equal(t, CacheCore, d.Cache)
	})

	t.Run("api host wins over navigation accept header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://api.openai.com/v1/models", nil)
		req.Header.Set("Accept", "text/html")
		d := c.Classify(req)
		assert.Equal(t, NetworkFirst, d.Strategy)
	})
}

func TestIntercepts(t *testing.T) {
	c := DefaultClassifier()

	t.Run("same-origin GET intercepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/dashboard", nil)
		assert.True(t, c.Intercepts(req))
	})

	t.Run("non-GET passes through", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/messages", nil)
		assert.False(t, c.Intercepts(req))
	})

	t.Run("allow-listed origin intercepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://api.clerk.dev/v1/session", nil)
		req.Host = "app.example.com"
		assert.True(t, c.Intercepts(req))
	})

	t.Run("unknown origin passes through", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://tracker.example.net/pixel.gif", nil)
		req.Host = "app.example.com"
		assert.False(t, c.Intercepts(req))
	})
}
