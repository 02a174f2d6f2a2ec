package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with LRU eviction. Safe for
// concurrent use by the evaluation worker pool.
type MemoryCache struct {
	config  Config
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	size    int64
	stats   Stats
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
}

func (e *memoryEntry) expired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(config Config) (*MemoryCache, error) {
	return &MemoryCache{
		config:  config,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		stats:   Stats{MaxSize: config.MaxSize},
	}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if entry.expired() {
		c.removeLocked(elem)
		c.stats.Misses++
		return nil, false, nil
	}

	c.lru.MoveToFront(elem)
	c.stats.Hits++

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	entry := &memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: expiresAt,
		size:      int64(len(stored)),
	}
	c.entries[key] = c.lru.PushFront(entry)
	c.size += entry.size
	c.stats.Sets++
	c.stats.Size = c.size
	c.stats.LastAccess = time.Now()

	// Evict least recently used entries until within budget.
	for c.config.MaxSize > 0 && c.size > c.config.MaxSize && c.lru.Len() > 1 {
		if back := c.lru.Back(); back != nil {
			c.removeLocked(back)
		}
	}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	c.stats.Size = 0
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = c.size
	return stats
}

func (c *MemoryCache) Close() error {
	return c.Clear(context.Background())
}

// removeLocked unlinks an element; caller holds the mutex.
func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
	c.size -= entry.size
	c.stats.Size = c.size
}
