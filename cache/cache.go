// Package cache provides a small generic in-memory keyed store. No other
// package in the module imports it; the WebSocket fan-out (C11) keeps its
// broadcast content hashes in a plain map of its own.
package cache

import (
	"sync"

	"github.com/Serph91P/StreamVault-sub001/log"
)

type Cache[T interface{}] struct {
	cache map[string]T
	mutex sync.Mutex
}

func New[T interface{}]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Remove(requestID, key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, key)
	log.Log(requestID, "cache: entry removed", "key", key)
}

func (c *Cache[T]) Get(key string) T {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, ok := c.cache[key]
	if ok {
		return info
	}
	var zero T
	return zero
}

func (c *Cache[T]) Has(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.cache[key]
	return ok
}

func (c *Cache[T]) Store(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = value
}

func (c *Cache[T]) UnittestIntrospection() *map[string]T {
	return &c.cache
}
