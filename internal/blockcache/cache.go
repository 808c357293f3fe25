// Package blockcache keeps recently decoded payloads so that repeated
// windowed reads of an encoded payload decode it once.
package blockcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the default number of decoded payloads kept.
const DefaultSize = 8

// Key identifies one stored payload.
type Key struct {
	Source string
	Offset int64
}

// Cache is a bounded LRU of decoded payload bytes.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[Key, []byte]
}

// New creates a cache holding at most size payloads.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the payload for key, calling load on a miss. The returned
// slice is shared and must not be modified.
func (c *Cache) Get(key Key, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.lru.Get(key); ok {
		return data, nil
	}
	data, err := load()
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, data)
	return data, nil
}

// Purge drops every payload that belongs to source.
func (c *Cache) Purge(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.lru.Keys() {
		if k.Source == source {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
