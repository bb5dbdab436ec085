package georaster

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rasterCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_raster_cache_hits_total",
		Help: "The total number of hits on the raster cache",
	})
	rasterCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_raster_cache_misses_total",
		Help: "The total number of misses on the raster cache",
	})
	rasterCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "georaster_raster_cache_evictions_total",
		Help: "The total number of evictions from the raster cache",
	})
)

// A CacheEntry is the result of decoding a source: either its rasters or
// the error that decoding it failed with.
type CacheEntry struct {
	Rasters []DataRaster
	Err     error
}

// An EvictionListener is called when an entry is removed from a RasterCache.
type EvictionListener func(key string, entry CacheEntry)

type rasterCacheEntry struct {
	entry CacheEntry
	size  int64
}

type evictedEntry struct {
	key   string
	entry CacheEntry
}

// A RasterCache is a least recently used cache of decoded rasters bounded by
// their total size in bytes. It is safe for concurrent use. Eviction
// listeners are called without the cache's lock held, possibly on a
// different goroutine from the one that added the entry.
type RasterCache struct {
	mutex          sync.Mutex
	lru            *simplelru.LRU[string, rasterCacheEntry]
	capacity       int64
	used           int64
	evicted        []evictedEntry
	listeners      map[int]EvictionListener
	nextListenerID int
}

// NewRasterCache returns a new RasterCache holding up to capacity bytes.
func NewRasterCache(capacity int64) (*RasterCache, error) {
	if capacity <= 0 {
		return nil, newConfigError("capacity", "must be positive")
	}
	c := &RasterCache{
		capacity:  capacity,
		listeners: make(map[int]EvictionListener),
	}
	lru, err := simplelru.NewLRU[string, rasterCacheEntry](math.MaxInt, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict is called by c.lru with c.mutex held.
func (c *RasterCache) onEvict(key string, value rasterCacheEntry) {
	c.used -= value.size
	c.evicted = append(c.evicted, evictedEntry{
		key:   key,
		entry: value.entry,
	})
	rasterCacheEvictions.Inc()
}

// Get returns the entry for key.
func (c *RasterCache) Get(key string) (CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	value, ok := c.lru.Get(key)
	if !ok {
		rasterCacheMisses.Inc()
		return CacheEntry{}, false
	}
	rasterCacheHits.Inc()
	return value.entry, true
}

// Peek returns the entry for key without updating its recency or metrics.
func (c *RasterCache) Peek(key string) (CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	value, ok := c.lru.Peek(key)
	return value.entry, ok
}

// Add adds entry with size bytes under key, replacing any existing entry,
// and evicts the least recently used entries until c is within capacity. The
// newest entry is never evicted by its own addition.
func (c *RasterCache) Add(key string, entry CacheEntry, size int64) {
	c.mutex.Lock()
	c.lru.Remove(key)
	c.lru.Add(key, rasterCacheEntry{
		entry: entry,
		size:  size,
	})
	c.used += size
	for c.used > c.capacity && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
	}
	c.notify()
}

// Remove removes the entry for key, returning whether it was present.
func (c *RasterCache) Remove(key string) bool {
	c.mutex.Lock()
	ok := c.lru.Remove(key)
	c.notify()
	return ok
}

// Clear removes every entry.
func (c *RasterCache) Clear() {
	c.mutex.Lock()
	c.lru.Purge()
	c.notify()
}

// Len returns the number of entries in c.
func (c *RasterCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lru.Len()
}

// UsedCapacity returns the total size of the entries in c.
func (c *RasterCache) UsedCapacity() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.used
}

// Capacity returns c's capacity in bytes.
func (c *RasterCache) Capacity() int64 {
	return c.capacity
}

// AddEvictionListener adds listener and returns a function that removes it.
func (c *RasterCache) AddEvictionListener(listener EvictionListener) func() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = listener
	return func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		delete(c.listeners, id)
	}
}

// notify unlocks c.mutex and then calls the listeners for each evicted
// entry.
func (c *RasterCache) notify() {
	evicted := c.evicted
	c.evicted = nil
	var listeners []EvictionListener
	if len(evicted) > 0 {
		listeners = make([]EvictionListener, 0, len(c.listeners))
		for _, listener := range c.listeners {
			listeners = append(listeners, listener)
		}
	}
	c.mutex.Unlock()

	for _, e := range evicted {
		for _, listener := range listeners {
			listener(e.key, e.entry)
		}
	}
}
