// Package embedcache memoizes embedding vectors between refreshes.
package embedcache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/config"
)

// Cache is the store behind llm.CachedEmbedder.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

// New builds the cache selected by cfg. It returns nil when caching is
// disabled.
func New(ctx context.Context, cfg config.EmbeddingCache) (Cache, error) {
	ttl := time.Duration(cfg.TTLSecs) * time.Second

	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.Capacity, ttl), nil
	case "redis":
		url := os.Getenv(cfg.RedisURLEnv)
		if url == "" {
			return nil, fmt.Errorf("redis cache selected but %s is not set", cfg.RedisURLEnv)
		}
		r, err := NewRedis(ctx, url, ttl)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown embedding cache type: %s", cfg.Type)
	}
}
