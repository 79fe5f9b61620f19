package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// catalogSnapshot is an immutable view of one family's live model list,
// swapped atomically so readers never block on the refresher (spec.md §5:
// single-writer/many-reader, lock-free snapshot reads).
type catalogSnapshot struct {
	models []string
	err    error
}

// ModelCatalog refreshes a Provider's model list on a fixed interval and
// serves the last-known snapshot to readers without blocking on the
// network, grounded on the teacher's periodic-refresh pattern used for
// MLX/Ollama endpoint polling in internal/llm.
type ModelCatalog struct {
	provider Provider
	interval time.Duration

	snap atomic.Pointer[catalogSnapshot]

	stopOnce sync.Once
	stop     chan struct{}
}

func NewModelCatalog(provider Provider, interval time.Duration) *ModelCatalog {
	if interval <= 0 {
		interval = 120 * time.Second
	}
	c := &ModelCatalog{provider: provider, interval: interval, stop: make(chan struct{})}
	c.snap.Store(&catalogSnapshot{})
	return c
}

// Start launches the background refresher; call once from the composition
// root. The first refresh runs synchronously so early requests don't race
// an empty catalog.
func (c *ModelCatalog) Start(ctx context.Context) {
	c.refresh(ctx)
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	}()
}

func (c *ModelCatalog) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *ModelCatalog) refresh(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	models, err := c.provider.ListModels(cctx)
	if err != nil {
		prev := c.snap.Load()
		c.snap.Store(&catalogSnapshot{models: prev.models, err: err})
		return
	}
	c.snap.Store(&catalogSnapshot{models: models})
}

// Models returns the last successfully refreshed model list. It never
// blocks on the network.
func (c *ModelCatalog) Models() []string {
	return c.snap.Load().models
}

// Has reports whether model is currently present in the live catalog.
func (c *ModelCatalog) Has(model string) bool {
	for _, m := range c.Models() {
		if m == model {
			return true
		}
	}
	return false
}

// Pick resolves a preferred model against the live catalog, falling back
// to the first available model, or "" if the catalog is empty.
func (c *ModelCatalog) Pick(preferred string) string {
	models := c.Models()
	if len(models) == 0 {
		return ""
	}
	if preferred != "" {
		for _, m := range models {
			if m == preferred {
				return preferred
			}
		}
	}
	return models[0]
}
