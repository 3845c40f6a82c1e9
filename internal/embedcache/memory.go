package embedcache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type item struct {
	vec []float32
	ts  time.Time
}

// Memory keeps a bounded set of recently computed embeddings in process.
type Memory struct {
	mu       sync.Mutex
	items    map[string]item
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewMemory creates a cache with the provided capacity and ttl.
func NewMemory(capacity int, ttl time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{
		items:    make(map[string]item, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Get returns the vector stored under key if it is still inside the ttl window.
func (m *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok || now.Sub(it.ts) > m.ttl {
		return nil, false, nil
	}
	return it.vec, true, nil
}

// Set stores vec under key, evicting the oldest entries past capacity.
func (m *Memory) Set(_ context.Context, key string, vec []float32) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = item{vec: vec, ts: now}
	m.order = append(m.order, entry{key: key, ts: now})
	m.compact(now)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) compact(now time.Time) {
	cutoff := now.Add(-m.ttl)

	for len(m.order) > 0 && (len(m.items) > m.capacity || m.order[0].ts.Before(cutoff)) {
		oldest := m.order[0]
		m.order = m.order[1:]

		if it, ok := m.items[oldest.key]; ok && it.ts.Equal(oldest.ts) {
			delete(m.items, oldest.key)
		}
	}
}
