// Package cache provides a minimal lock-guarded lazily initialized value,
// used for the process-wide feature table, artifact bundle, and static
// baseline caches.
package cache

import "sync"

// Cache holds a single value populated exactly once by GetOrInit. A failed
// initialization is not memoized so a later call may retry.
type Cache[T any] struct {
	mu     sync.Mutex
	loaded bool
	val    T
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrInit returns the cached value, running init under the cache lock if no
// value has been stored yet. Concurrent first-time callers are serialized and
// all observe the same stored value.
func (c *Cache[T]) GetOrInit(init func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.val, nil
	}
	val, err := init()
	if err != nil {
		var zero T
		return zero, err
	}
	c.val = val
	c.loaded = true
	return c.val, nil
}
