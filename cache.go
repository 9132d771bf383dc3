package uhttp

import (
	"sort"
	"sync"
	"time"
)

// DefaultCacheName is the cache used when Options.Cache is true.
const DefaultCacheName = "__default"

// Cacher is the capability the pipeline needs from a cache. Any value with
// these methods is accepted as Options.Cache, whatever its concrete type.
type Cacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, opts *CacheOptions)
	Remove(key string)
	Clear()
}

// CacheOptions configures a cache's default TTL (CacheRegistry.Get) or the
// TTL of a single write (Cache.Set). Zero means no expiry.
type CacheOptions struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheEntry is a single stored value.
type CacheEntry struct {
	Key      string
	Value    any
	StoredAt time.Time
	TTL      time.Duration

	timer *time.Timer
}

// Cache is a named in-memory store. Entries with a TTL are removed by a
// timer scheduled at write time; reads never expire anything.
type Cache struct {
	name    string
	timeout time.Duration

	mu       sync.Mutex
	store    map[string]*CacheEntry
	observer func(name string, size int)
}

// NewCache creates a standalone cache. Most callers should obtain caches
// from a CacheRegistry instead so that identical names share an instance.
func NewCache(name string, opts *CacheOptions) *Cache {
	c := &Cache{
		name:  name,
		store: make(map[string]*CacheEntry),
	}
	if opts != nil && opts.Timeout > 0 {
		c.timeout = opts.Timeout
	}
	return c
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Timeout returns the default TTL applied by Set.
func (c *Cache) Timeout() time.Duration {
	return c.timeout
}

// Get returns the stored value for key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.store[key]
	if !exists {
		return nil, false
	}
	return entry.Value, true
}

// Entry returns a copy of the entry stored for key.
func (c *Cache) Entry(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.store[key]
	if !exists {
		return CacheEntry{}, false
	}
	return CacheEntry{Key: entry.Key, Value: entry.Value, StoredAt: entry.StoredAt, TTL: entry.TTL}, true
}

// Set stores value under key. The TTL is opts.Timeout when positive, the
// cache default otherwise. Any eviction pending for a previous write to the
// same key is cancelled.
func (c *Cache) Set(key string, value any, opts *CacheOptions) {
	ttl := c.timeout
	if opts != nil && opts.Timeout > 0 {
		ttl = opts.Timeout
	}

	entry := &CacheEntry{
		Key:      key,
		Value:    value,
		StoredAt: time.Now(),
		TTL:      ttl,
	}

	c.mu.Lock()
	if prev, ok := c.store[key]; ok {
		prev.stop()
	}
	c.store[key] = entry
	if ttl > 0 {
		entry.timer = time.AfterFunc(ttl, func() { c.expire(key, entry) })
	}
	size := len(c.store)
	c.mu.Unlock()

	c.notify(size)
}

// Remove deletes key.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	if entry, ok := c.store[key]; ok {
		entry.stop()
		delete(c.store, key)
	}
	size := len(c.store)
	c.mu.Unlock()

	c.notify(size)
}

// Clear removes every entry and cancels pending evictions.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, entry := range c.store {
		entry.stop()
	}
	c.store = make(map[string]*CacheEntry)
	c.mu.Unlock()

	c.notify(0)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// Keys returns the stored keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// expire removes key only if it still holds the entry the timer was armed for.
func (c *Cache) expire(key string, entry *CacheEntry) {
	c.mu.Lock()
	current, ok := c.store[key]
	if !ok || current != entry {
		c.mu.Unlock()
		return
	}
	delete(c.store, key)
	size := len(c.store)
	c.mu.Unlock()

	c.notify(size)
}

func (c *Cache) notify(size int) {
	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer(c.name, size)
	}
}

func (c *Cache) setObserver(fn func(name string, size int)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (e *CacheEntry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}
