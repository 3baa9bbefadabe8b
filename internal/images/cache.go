package images

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "letters_image_cache_hits_total",
		Help: "Image fetches served from the cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "letters_image_cache_misses_total",
		Help: "Image fetches that went to the backing store.",
	})
)

// DefaultCacheSize is the number of images kept when no size is configured
const DefaultCacheSize = 256

// Cache is a bounded LRU in front of another Store. It is safe for
// concurrent use. Failed fetches, not-found included, are never cached.
type Cache struct {
	store Store
	lru   *lru.Cache[string, []byte]
}

// NewCache wraps store with an LRU holding at most size images
func NewCache(store Store, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &Cache{store: store, lru: c}, nil
}

// Fetch returns the cached image for ref or fetches and caches it
func (c *Cache) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if data, ok := c.lru.Get(ref); ok {
		cacheHitsTotal.Inc()
		return data, nil
	}
	cacheMissesTotal.Inc()

	data, err := c.store.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.lru.Add(ref, data)
	return data, nil
}

// Len returns the number of cached images
func (c *Cache) Len() int {
	return c.lru.Len()
}
