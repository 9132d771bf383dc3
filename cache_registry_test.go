package uhttp

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCacheRegistryHoldsDefault(t *testing.T) {
	registry := NewCacheRegistry()

	names := registry.Names()
	if len(names) != 1 || names[0] != DefaultCacheName {
		t.Errorf("Expected only %s, got %v", DefaultCacheName, names)
	}
	if registry.Default().Name() != DefaultCacheName {
		t.Errorf("Expected default cache name %s, got %s", DefaultCacheName, registry.Default().Name())
	}
}

func TestCacheRegistryGetIsIdempotent(t *testing.T) {
	registry := NewCacheRegistry()

	first := registry.Get("users", CacheOptions{Timeout: time.Minute})
	second := registry.Get("users", CacheOptions{Timeout: time.Hour})
	third := registry.Get("users")

	if first != second || first != third {
		t.Error("Expected the same cache instance for the same name")
	}
	if first.Timeout() != time.Minute {
		t.Errorf("Expected options of the first Get to stick, got %v", first.Timeout())
	}
	if registry.Get("other") == first {
		t.Error("Expected a different cache for a different name")
	}
}

func TestCacheRegistryConcurrentGet(t *testing.T) {
	registry := NewCacheRegistry()

	var wg sync.WaitGroup
	caches := make([]*Cache, 50)
	for i := range caches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caches[i] = registry.Get("shared")
		}(i)
	}
	wg.Wait()

	for i, c := range caches {
		if c != caches[0] {
			t.Fatalf("Concurrent Get %d returned a different instance", i)
		}
	}
}

func TestCacheRegistryClearAll(t *testing.T) {
	registry := NewCacheRegistry()
	registry.Default().Set("a", 1, nil)
	registry.Get("users").Set("b", 2, nil)

	registry.ClearAll()

	if registry.Default().Len() != 0 || registry.Get("users").Len() != 0 {
		t.Error("Expected every cache to be empty")
	}
	if len(registry.Names()) != 2 {
		t.Errorf("Expected caches to stay registered, got %v", registry.Names())
	}
}

func TestDefaultCacheRegistryIsSingleton(t *testing.T) {
	if DefaultCacheRegistry() != DefaultCacheRegistry() {
		t.Error("Expected the same default registry")
	}
	if DefaultCacheRegistry().Default() == nil {
		t.Error("Expected the default cache to exist")
	}
}

func TestCacheRegistryObserveMetrics(t *testing.T) {
	registry := NewCacheRegistry()
	existing := registry.Get("existing")

	metrics := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	registry.observe(metrics)

	existing.Set("a", 1, nil)
	created := registry.Get("created")
	created.Set("a", 1, nil)
	created.Set("b", 2, nil)

	if got := testutil.ToFloat64(metrics.cacheSize.WithLabelValues("existing")); got != 1 {
		t.Errorf("Expected existing size 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.cacheSize.WithLabelValues("created")); got != 2 {
		t.Errorf("Expected created size 2, got %v", got)
	}
}
