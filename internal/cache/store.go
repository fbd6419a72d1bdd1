// Package cache implements the offline caching gateway: request
// classification into cache-first, network-first, and
// stale-while-revalidate strategies over named caches, so the
// dashboard stays minimally usable when connectivity is poor.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Named caches. The version suffix must be bumped to force cache
// invalidation on deploy.
const (
	CacheCore    = "napoleon-ai-v1"
	CacheStatic  = "napoleon-static-v1"
	CacheDynamic = "napoleon-dynamic-v1"
)

// CurrentCaches is the active cache set; activation evicts everything
// else.
var CurrentCaches = []string{CacheCore, CacheStatic, CacheDynamic}

// CachedResponse is one stored HTTP response.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Store is the persistence behind the named caches.
type Store interface {
	Get(ctx context.Context, cache, key string) (*CachedResponse, bool, error)
	Put(ctx context.Context, cache, key string, resp *CachedResponse) error
	Caches(ctx context.Context) ([]string, error)
	DropCache(ctx context.Context, cache string) error
}

// MemoryStore is an in-process Store, used in tests and single-node
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	caches map[string]map[string]*CachedResponse
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{caches: make(map[string]map[string]*CachedResponse)}
}

func (s *MemoryStore) Get(ctx context.Context, cache, key string) (*CachedResponse, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.caches[cache]
	if !ok {
		return nil, false, nil
	}
	resp, ok := entries[key]
	return resp, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, cache, key string, resp *CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.caches[cache]
	if !ok {
		entries = make(map[string]*CachedResponse)
		s.caches[cache] = entries
	}
	entries[key] = resp
	return nil
}

func (s *MemoryStore) Caches(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	return names, nil
}

func (s *MemoryStore) DropCache(ctx context.Context, cache string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.caches, cache)
	return nil
}

// RedisStore persists cached responses in Redis so cache contents
// survive process restarts and are shared across instances.
type RedisStore struct {
	rdb *redis.Client
}

const cacheRegistryKey = "sw:caches"

// NewRedisStore creates a RedisStore from a Redis URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts)}, nil
}

func redisCacheKey(cache, key string) string {
	return "sw:" + cache + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, cache, key string) (*CachedResponse, bool, error) {
	raw, err := s.rdb.Get(ctx, redisCacheKey(cache, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("corrupt cached response: %w", err)
	}
	return &resp, true, nil
}

func (s *RedisStore) Put(ctx context.Context, cache, key string, resp *CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisCacheKey(cache, key), raw, 0)
	pipe.SAdd(ctx, cacheRegistryKey, cache)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Caches(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, cacheRegistryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return names, nil
}

func (s *RedisStore) DropCache(ctx context.Context, cache string) error {
	var cursor uint64
	pattern := "sw:" + cache + ":*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del failed: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.rdb.SRem(ctx, cacheRegistryKey, cache).Err()
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
