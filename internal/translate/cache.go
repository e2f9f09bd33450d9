package translate

import (
	"context"
	"io"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ModelCache holds loaded models keyed by language pair. The least recently
// used model is evicted, and closed when possible, once the cache is full.
type ModelCache struct {
	backend Backend
	cache   *lru.Cache[Pair, Model]
	logger  *slog.Logger

	// loadMu serializes misses so a pair is never loaded twice.
	loadMu sync.Mutex
}

func NewModelCache(backend Backend, size int, logger *slog.Logger) (*ModelCache, error) {
	if size < 1 {
		size = 1
	}
	c := &ModelCache{backend: backend, logger: logger}
	cache, err := lru.NewWithEvict[Pair, Model](size, c.evicted)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get returns the cached model for pair, loading it under name on a miss.
func (c *ModelCache) Get(ctx context.Context, pair Pair, name string) (Model, error) {
	if model, ok := c.cache.Get(pair); ok {
		return model, nil
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if model, ok := c.cache.Get(pair); ok {
		return model, nil
	}
	model, err := c.backend.Load(ctx, pair, name)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pair, model)
	c.logger.Info("translation model loaded", slog.String("pair", pair.String()), slog.String("model", name))
	return model, nil
}

// Loaded returns the pairs currently held, least recently used first.
func (c *ModelCache) Loaded() []Pair { return c.cache.Keys() }

// Purge drops every model.
func (c *ModelCache) Purge() { c.cache.Purge() }

func (c *ModelCache) evicted(pair Pair, model Model) {
	c.logger.Debug("translation model evicted", slog.String("pair", pair.String()))
	if closer, ok := model.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("failed to close translation model", slog.String("pair", pair.String()), slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
