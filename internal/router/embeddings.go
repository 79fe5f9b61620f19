package router

import (
	"bytes"
	"container/list"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmesh/internal/model"
	"taskmesh/internal/observability"
)

// embeddingRequest/-Response mirror the teacher's FetchEmbeddings
// (internal/llm/embeddings.go) shape, generalized to a single-input call
// since Router.Embed embeds one goal/snippet at a time.
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embedder turns text into a fixed-dimension vector, per spec.md §4.3.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type httpEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewHTTPEmbedder(baseURL, apiKey, model string) Embedder {
	return &httpEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	if len(er.Data) == 0 {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("empty embedding response")}
	}
	vec := er.Data[0].Embedding
	if err := model.ValidateEmbedding(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// normalizeKey collapses whitespace and case so textual variants of the
// same goal hit the same cache entry, per spec.md §4.3's embedding cache key.
func normalizeKey(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	sum := md5.Sum([]byte(strings.Join(fields, " ")))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	key       string
	vec       []float32
	expiresAt time.Time
}

// CachingEmbedder wraps an Embedder with a small in-memory LRU+TTL cache,
// grounded on the teacher's in-memory caching style elsewhere in the repo,
// plus an optional Redis-backed second tier so embeddings survive restarts.
type CachingEmbedder struct {
	inner    Embedder
	ttlSpan  time.Duration
	capacity int

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	redis *redis.Client
}

func NewCachingEmbedder(inner Embedder, capacity int, ttl time.Duration, rdb *redis.Client) *CachingEmbedder {
	if capacity <= 0 {
		capacity = 4096
	}
	return &CachingEmbedder{
		inner:    inner,
		ttlSpan:  ttl,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		redis:    rdb,
	}
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := normalizeKey(text)

	if vec, ok := c.getLocal(key); ok {
		return vec, nil
	}
	if c.redis != nil {
		if vec, ok := c.getRedis(ctx, key); ok {
			c.putLocal(key, vec)
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.putLocal(key, vec)
	if c.redis != nil {
		c.putRedis(ctx, key, vec)
	}
	return vec, nil
}

func (c *CachingEmbedder) getLocal(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.vec, true
}

func (c *CachingEmbedder) putLocal(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).vec = vec
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttlSpan)
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, vec: vec, expiresAt: time.Now().Add(c.ttlSpan)})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *CachingEmbedder) getRedis(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.redis.Get(ctx, "embed:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachingEmbedder) putRedis(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	c.redis.Set(ctx, "embed:"+key, raw, c.ttlSpan)
}
