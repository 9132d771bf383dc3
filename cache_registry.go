package uhttp

import (
	"sort"
	"sync"
)

// CacheRegistry maps names to caches. Get is idempotent: the same name
// always yields the same *Cache for the lifetime of the registry.
type CacheRegistry struct {
	mutex   sync.RWMutex
	caches  map[string]*Cache
	metrics *MetricsCollector
}

var (
	defaultRegistry     *CacheRegistry
	defaultRegistryOnce sync.Once
)

// NewCacheRegistry creates a registry holding only the default cache.
func NewCacheRegistry() *CacheRegistry {
	r := &CacheRegistry{
		caches: make(map[string]*Cache),
	}
	r.caches[DefaultCacheName] = NewCache(DefaultCacheName, nil)
	return r
}

// DefaultCacheRegistry returns the process wide registry used by clients
// that were not given one explicitly.
func DefaultCacheRegistry() *CacheRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewCacheRegistry()
	})
	return defaultRegistry
}

// Get returns the cache registered under name, creating it with opts when
// absent. opts is ignored for existing caches.
func (r *CacheRegistry) Get(name string, opts ...CacheOptions) *Cache {
	r.mutex.RLock()
	cache, exists := r.caches[name]
	r.mutex.RUnlock()

	if exists {
		return cache
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Another caller may have created it between the locks.
	if cache, exists = r.caches[name]; exists {
		return cache
	}

	var o *CacheOptions
	if len(opts) > 0 {
		o = &opts[0]
	}
	cache = NewCache(name, o)
	if r.metrics != nil {
		cache.setObserver(r.metrics.RecordCacheSize)
	}
	r.caches[name] = cache
	return cache
}

// Default returns the "__default" cache.
func (r *CacheRegistry) Default() *Cache {
	return r.Get(DefaultCacheName)
}

// Names lists the registered cache names in sorted order.
func (r *CacheRegistry) Names() []string {
	r.mutex.RLock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	r.mutex.RUnlock()

	sort.Strings(names)
	return names
}

// ClearAll empties every registered cache. The caches stay registered.
func (r *CacheRegistry) ClearAll() {
	r.mutex.RLock()
	caches := make([]*Cache, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mutex.RUnlock()

	for _, c := range caches {
		c.Clear()
	}
}

// observe routes cache size changes of every current and future cache to mc.
func (r *CacheRegistry) observe(mc *MetricsCollector) {
	if mc == nil {
		return
	}

	r.mutex.Lock()
	r.metrics = mc
	caches := make([]*Cache, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mutex.Unlock()

	for _, c := range caches {
		c.setObserver(mc.RecordCacheSize)
	}
}
