package cache

import (
	"time"

	"finanzen/internal/core"
)

// CategoryCache keeps each user's category list.
type CategoryCache struct {
	lru *LRUCache[[]core.Category]
}

func NewCategoryCache(maxUsers int, ttl time.Duration) *CategoryCache {
	return &CategoryCache{lru: NewLRUCache[[]core.Category](maxUsers, ttl)}
}

// Get returns a copy of the cached list so callers may modify it.
func (c *CategoryCache) Get(userID string) ([]core.Category, bool) {
	v, ok := c.lru.Get(userID)
	if !ok {
		return nil, false
	}
	return append([]core.Category(nil), v...), true
}

func (c *CategoryCache) Put(userID string, categories []core.Category) {
	c.lru.Set(userID, append([]core.Category(nil), categories...))
}

// Invalidate drops the user's entry after a category write.
func (c *CategoryCache) Invalidate(userID string) {
	c.lru.Delete(userID)
}

func (c *CategoryCache) CleanExpired() int { return c.lru.CleanExpired() }
