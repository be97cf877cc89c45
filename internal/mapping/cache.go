package mapping

import (
	"sync"

	"github.com/desertthunder/plx/internal/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores resolved mappings keyed by [Key]. A nil mapping is a valid, cacheable "not found".
type Cache interface {
	Get(key string) (*models.TrackMapping, bool)
	// SetIfAbsent stores m only when key has no entry yet and reports whether it did.
	SetIfAbsent(key string, m *models.TrackMapping) bool
	Len() int
}

// Key builds the cache key for a track on service.
func Key(service models.Provider, trackID string) string {
	return string(service) + ":" + trackID
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.TrackMapping
}

// NewMemoryCache returns an unbounded [Cache].
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]*models.TrackMapping)}
}

func (c *memoryCache) Get(key string) (*models.TrackMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[key]
	return m, ok
}

func (c *memoryCache) SetIfAbsent(key string, m *models.TrackMapping) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = m
	return true
}

func (c *memoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type lruCache struct {
	entries *lru.Cache[string, *models.TrackMapping]
}

// NewLRUCache returns a [Cache] holding at most size entries, evicting the least recently used.
func NewLRUCache(size int) (Cache, error) {
	entries, err := lru.New[string, *models.TrackMapping](size)
	if err != nil {
		return nil, err
	}
	return &lruCache{entries: entries}, nil
}

func (c *lruCache) Get(key string) (*models.TrackMapping, bool) {
	return c.entries.Get(key)
}

func (c *lruCache) SetIfAbsent(key string, m *models.TrackMapping) bool {
	present, _ := c.entries.ContainsOrAdd(key, m)
	return !present
}

func (c *lruCache) Len() int {
	return c.entries.Len()
}
