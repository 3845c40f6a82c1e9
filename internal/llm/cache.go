package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/NewsSense/internal/logger"
)

// EmbeddingCache stores vectors by key. A miss is reported as ok == false
// with a nil error.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CachedEmbedder wraps an Embedder and memoizes its vectors. Cache failures
// are logged and never fail an embedding.
type CachedEmbedder struct {
	inner     Embedder
	cache     EmbeddingCache
	model     string
	dimension int
	log       *slog.Logger
}

// NewCachedEmbedder wraps inner with cache. Keys are namespaced by model and
// dimension, so changing either never serves stale vectors.
func NewCachedEmbedder(inner Embedder, cache EmbeddingCache, model string, dimension int, log *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		cache:     cache,
		model:     model,
		dimension: dimension,
		log:       logger.OrDiscard(log),
	}
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.model, c.dimension, text)

	vec, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("embedding cache read failed", "error", err)
	case ok && c.dimension > 0 && len(vec) != c.dimension:
		c.log.Warn("ignoring cached embedding with wrong dimension", "want", c.dimension, "got", len(vec))
	case ok:
		return vec, nil
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, vec); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// CacheKey derives the cache key for a model, output dimension and input text.
func CacheKey(model string, dimension int, text string) string {
	return fmt.Sprintf("%s:%d:%x", model, dimension, sha256.Sum256([]byte(text)))
}
