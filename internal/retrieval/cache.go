// Package retrieval assembles short relevance-ordered context blocks for a
// goal (spec.md §4.4): cache lookup, vector search with a substring
// fallback, optional reranking, and snippet trimming.
package retrieval

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmesh/internal/config"
)

// cacheKey is md5(lower(trim(goal))), per spec.md §4.4 step 1.
func cacheKey(goal string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(goal))))
	return hex.EncodeToString(sum[:])
}

// ContextCache stores a fully-assembled ContextBlock keyed by goal, so a
// repeated goal within RAG_CACHE_TTL skips the whole retrieval pipeline.
type ContextCache interface {
	Get(ctx context.Context, goal string) (ContextBlock, bool)
	Put(ctx context.Context, goal string, block ContextBlock)
}

type memoryCacheEntry struct {
	block     ContextBlock
	expiresAt time.Time
}

// memoryCache is an in-process LRU-by-insertion cache of size ≤500 with
// lazy eviction of at most 50 expired entries per call, grounded on
// spec.md §4.4 step 1's exact eviction policy.
type memoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    []string
	entries  map[string]memoryCacheEntry
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		ttl:      ttl,
		capacity: 500,
		entries:  make(map[string]memoryCacheEntry),
	}
}

func (c *memoryCache) Get(_ context.Context, goal string) (ContextBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(50)
	key := cacheKey(goal)
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return ContextBlock{}, false
	}
	return e.block, true
}

func (c *memoryCache) Put(_ context.Context, goal string, block ContextBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(goal)
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = memoryCacheEntry{block: block, expiresAt: time.Now().Add(c.ttl)}
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *memoryCache) evictExpiredLocked(maxEvict int) {
	now := time.Now()
	evicted := 0
	remaining := c.order[:0]
	for _, key := range c.order {
		if evicted < maxEvict {
			if e, ok := c.entries[key]; ok && now.After(e.expiresAt) {
				delete(c.entries, key)
				evicted++
				continue
			}
		}
		remaining = append(remaining, key)
	}
	c.order = remaining
}

// redisCache is the RAG_CACHE_BACKEND=redis alternative: an external
// key-value store shared across process instances.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(client *redis.Client, ttl time.Duration) *redisCache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, goal string) (ContextBlock, bool) {
	raw, err := c.client.Get(ctx, "ragctx:"+cacheKey(goal)).Bytes()
	if err != nil {
		return ContextBlock{}, false
	}
	var block ContextBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return ContextBlock{}, false
	}
	return block, true
}

func (c *redisCache) Put(ctx context.Context, goal string, block ContextBlock) {
	raw, err := json.Marshal(block)
	if err != nil {
		return
	}
	c.client.Set(ctx, "ragctx:"+cacheKey(goal), raw, c.ttl)
}

// NewContextCache builds the configured cache backend.
func NewContextCache(cfg config.RAGConfig, rdb *redis.Client) ContextCache {
	if cfg.CacheBackend == "redis" && rdb != nil {
		return newRedisCache(rdb, cfg.CacheTTL)
	}
	return newMemoryCache(cfg.CacheTTL)
}
