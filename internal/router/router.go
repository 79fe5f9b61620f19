package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"taskmesh/internal/config"
)

const rateLimitCooldown = 60 * time.Second

var errNoModels = errors.New("no models available in catalog")

// family bundles a Provider with its catalog and concurrency ceiling.
type family struct {
	name     string
	provider Provider
	catalog  *ModelCatalog
	sem      *semaphore.Weighted
}

// Router dispatches generation requests across the fast and heavy backend
// families, applying spec.md §4.3's cross-family failover rules, per-
// category rate-limit cooldowns, and echo rejection. Grounded on the
// teacher's internal/llm package's CallLLM/CallMLX pair, generalized from
// two hardcoded backends into a slice of named families.
type Router struct {
	fast  *family
	heavy *family

	heartbeat time.Duration

	mu        sync.Mutex
	cooldowns map[string]time.Time // category -> until

	embedder Embedder
}

func New(cfg config.RouterConfig, fastProvider, heavyProvider Provider, embedder Embedder) *Router {
	r := &Router{
		fast: &family{
			name:     "fast",
			provider: fastProvider,
			catalog:  NewModelCatalog(fastProvider, cfg.CatalogTTL),
			sem:      semaphore.NewWeighted(int64(maxOr(cfg.MaxConcurrentFast, 8))),
		},
		heavy: &family{
			name:     "heavy",
			provider: heavyProvider,
			catalog:  NewModelCatalog(heavyProvider, cfg.CatalogTTL),
			sem:      semaphore.NewWeighted(int64(maxOr(cfg.MaxConcurrentHeavy, 2))),
		},
		heartbeat: cfg.HeartbeatStream,
		cooldowns: make(map[string]time.Time),
		embedder:  embedder,
	}
	return r
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Start launches both families' catalog refreshers.
func (r *Router) Start(ctx context.Context) {
	r.fast.catalog.Start(ctx)
	r.heavy.catalog.Start(ctx)
}

func (r *Router) Stop() {
	r.fast.catalog.Stop()
	r.heavy.catalog.Stop()
}

// Embed delegates to the configured Embedder (itself typically wrapped in
// a CachingEmbedder by the composition root).
func (r *Router) Embed(ctx context.Context, text string) ([]float32, error) {
	return r.embedder.Embed(ctx, text)
}

// Dispatch runs spec.md §4.3's failover state machine: try the preferred
// (or first non-cooling-down) family; on 429 retry the other family
// immediately and start a cooldown on the rate-limited category; on
// transport/5xx retry the other family once; on timeout retry the other
// family only if the first attempt was the heavy family (never doubling
// the wall-clock budget for an already-slow fast-family timeout). Every
// non-empty response is checked for an echo before being accepted.
func (r *Router) Dispatch(ctx context.Context, req Request) (Response, error) {
	primary, secondary := r.order(req)

	resp, err := r.attempt(ctx, primary, req)
	if err == nil {
		return resp, nil
	}

	rerr, ok := err.(*Error)
	if !ok {
		return Response{}, err
	}

	switch rerr.Kind {
	case KindRateLimited:
		r.coolDown(req.Category)
		return r.attempt(ctx, secondary, req)
	case KindTransport:
		return r.attempt(ctx, secondary, req)
	case KindTimeout:
		if primary.name == "heavy" {
			return r.attempt(ctx, secondary, req)
		}
		return Response{}, err
	default:
		return Response{}, err
	}
}

// order picks the starting family for req, honoring an explicit
// preference and the category's active cooldown.
func (r *Router) order(req Request) (primary, secondary *family) {
	primary, secondary = r.fast, r.heavy
	if req.PreferredFamily == "heavy" {
		primary, secondary = r.heavy, r.fast
	}
	if r.inCooldown(req.Category) && primary == r.fast {
		primary, secondary = r.heavy, r.fast
	}
	return primary, secondary
}

func (r *Router) attempt(ctx context.Context, f *family, req Request) (Response, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return Response{}, &Error{Kind: KindTimeout, Err: err}
	}
	defer f.sem.Release(1)

	model := f.catalog.Pick(req.PreferredModel)
	if model == "" {
		return Response{}, &Error{Kind: KindUnavailable, Err: errNoModels}
	}

	text, err := f.provider.Generate(ctx, model, req.Prompt, req.MaxTokens)
	if err != nil {
		return Response{}, err
	}
	if isEcho(req.Prompt, text) {
		return Response{}, &Error{Kind: KindEcho}
	}
	return Response{Text: text, ModelUsed: model, SourceUsed: f.name}, nil
}

func (r *Router) coolDown(category string) {
	if category == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns[category] = time.Now().Add(rateLimitCooldown)
}

func (r *Router) inCooldown(category string) bool {
	if category == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.cooldowns[category]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(r.cooldowns, category)
		return false
	}
	return true
}
