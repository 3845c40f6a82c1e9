// Package memory is an in-process vectorindex backend using brute-force
// cosine similarity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
)

type index struct {
	dimension int
	metric    vectorindex.Metric
	vectors   map[string]vectorindex.Vector
	order     []string
}

// Backend keeps every index in memory. It is safe for concurrent use.
type Backend struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{indexes: make(map[string]*index)}
}

func (b *Backend) ListIndexes(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.indexes))
	for name := range b.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) CreateIndex(_ context.Context, name string, dimension int, metric vectorindex.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if metric != vectorindex.Cosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.indexes[name]; ok {
		return fmt.Errorf("index %q already exists", name)
	}
	b.indexes[name] = &index{
		dimension: dimension,
		metric:    metric,
		vectors:   make(map[string]vectorindex.Vector),
	}
	return nil
}

func (b *Backend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.indexes[name]; !ok {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	delete(b.indexes, name)
	return nil
}

func (b *Backend) DescribeIndex(_ context.Context, name string) (vectorindex.IndexStatus, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return vectorindex.IndexStatus{}, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	return vectorindex.IndexStatus{
		Ready:       true,
		Dimension:   idx.dimension,
		VectorCount: len(idx.vectors),
	}, nil
}

func (b *Backend) ListIDs(_ context.Context, name string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	return append([]string(nil), idx.order...), nil
}

func (b *Backend) Upsert(_ context.Context, name string, vectors []vectorindex.Vector) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	for _, v := range vectors {
		if len(v.Values) != idx.dimension {
			return fmt.Errorf("vector %s has dimension %d, index expects %d", v.ID, len(v.Values), idx.dimension)
		}
	}
	for _, v := range vectors {
		if _, exists := idx.vectors[v.ID]; !exists {
			idx.order = append(idx.order, v.ID)
		}
		idx.vectors[v.ID] = v
	}
	return nil
}

func (b *Backend) Query(_ context.Context, name string, vector []float32, topK int) ([]vectorindex.Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	if len(vector) != idx.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(vector), idx.dimension)
	}

	matches := make([]vectorindex.Match, 0, len(idx.order))
	for _, id := range idx.order {
		v := idx.vectors[id]
		matches = append(matches, vectorindex.Match{
			ID:       id,
			Score:    vectorindex.CosineSimilarity(vector, v.Values),
			Metadata: v.Metadata,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}
