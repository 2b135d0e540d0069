// Package responsecache provides the named response caches used by the
// offline gateway, held in memory or in the cache_entries table.
package responsecache

import (
	"context"
	"sort"
	"sync"

	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
)

// MemoryStorage keeps every cache in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*offline.Response
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open returns the named cache, creating it when absent.
func (s *MemoryStorage) Open(_ context.Context, name string) (offline.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*offline.Response)}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemoryStorage) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

func (c *memoryCache) Match(_ context.Context, key string) (*offline.Response, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (c *memoryCache) Put(_ context.Context, key string, resp *offline.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp.Clone()
	return nil
}
