package lazy

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when a cache size is not positive.
const DefaultCacheSize = 1024

// Cache holds computed node values, shared by every engine using it.
type Cache struct {
	lru *lru.Cache[uint64, any]
}

// NewCache creates a cache holding up to size values.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[uint64, any](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Key hashes a namespace and a node id.
func Key(namespace, id string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(id)
	return d.Sum64()
}

func (c *Cache) get(k uint64) (any, bool) {
	return c.lru.Get(k)
}

func (c *Cache) add(k uint64, v any) {
	c.lru.Add(k, v)
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached value.
func (c *Cache) Purge() {
	c.lru.Purge()
}
