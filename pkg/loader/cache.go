package loader

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheEntries bounds the number of raw files kept in memory.
const DefaultCacheEntries = 64

// Cache keeps recently read files in a bounded LRU and collapses concurrent
// reads of the same key into one load.
type Cache struct {
	files *lru.Cache[string, []byte]
	group singleflight.Group
}

// NewCache creates a cache holding at most size files. A size <= 0 uses
// DefaultCacheEntries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheEntries
	}
	files, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}
	return &Cache{files: files}, nil
}

// Get returns the cached content for key or calls load to fetch it. Failed
// loads are not cached.
func (c *Cache) Get(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if cached, ok := c.files.Get(key); ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.files.Get(key); ok {
			return cached, nil
		}

		content, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.files.Add(key, content)
		return content, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Purge drops every cached file.
func (c *Cache) Purge() {
	c.files.Purge()
}
