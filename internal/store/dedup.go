// Package store provides the permalink dedup set and the sqlite-backed deck state store.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultFalsePositiveRate is the bloom filter target used for permalink sets.
const DefaultFalsePositiveRate = 0.001

// DedupStore is a thread-safe set of permalink keys bounded by an LRU.
// The bloom filter short-circuits misses; the map is authoritative.
type DedupStore struct {
	keys                   map[string]struct{}
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, struct{}]
	mutex                  sync.RWMutex
	capacity               int
	bloomFalsePositiveRate float64
}

// NewDedupStore creates a set holding at most capacity keys.
func NewDedupStore(capacity int, bloomFalsePositiveRate float64) *DedupStore {
	if capacity < 1 {
		capacity = 1
	}
	lruCache, _ := lru.New[string, struct{}](capacity)

	return &DedupStore{
		keys:                   make(map[string]struct{}, capacity),
		bloom:                  bloom.NewWithEstimates(uint(capacity), bloomFalsePositiveRate), //nolint:gosec // capacity >= 1
		lru:                    lruCache,
		capacity:               capacity,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// Has reports whether key is in the set.
func (ds *DedupStore) Has(key string) bool {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.has(key)
}

// Add inserts key into the set.
func (ds *DedupStore) Add(key string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	ds.add(key)
}

// CheckAndAdd inserts key and reports whether it was absent before.
func (ds *DedupStore) CheckAndAdd(key string) bool {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if ds.has(key) {
		return false
	}
	ds.add(key)
	return true
}

// Load clears the set and inserts the provided keys. Empty keys are skipped.
func (ds *DedupStore) Load(keys []string) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.clear()
	for _, key := range keys {
		if key != "" {
			ds.add(key)
		}
	}
}

// Size returns the number of keys currently stored.
func (ds *DedupStore) Size() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.keys)
}

// Clear removes all keys.
func (ds *DedupStore) Clear() {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	ds.clear()
}

func (ds *DedupStore) has(key string) bool {
	if !ds.bloom.TestString(key) {
		return false
	}
	_, exists := ds.keys[key]
	return exists
}

func (ds *DedupStore) add(key string) {
	if _, exists := ds.keys[key]; exists {
		return
	}

	ds.keys[key] = struct{}{}
	ds.bloom.AddString(key)
	ds.lru.Add(key, struct{}{})

	if len(ds.keys) > ds.capacity {
		ds.evictOldest()
	}
}

func (ds *DedupStore) clear() {
	ds.keys = make(map[string]struct{}, ds.capacity)
	ds.bloom = bloom.NewWithEstimates(uint(ds.capacity), ds.bloomFalsePositiveRate) //nolint:gosec // capacity >= 1
	ds.lru.Purge()
}

// evictOldest drops the least recently added key. Its bloom bits stay set,
// which only costs an extra map lookup later.
func (ds *DedupStore) evictOldest() {
	oldestKey, _, ok := ds.lru.GetOldest()
	if !ok {
		return
	}

	delete(ds.keys, oldestKey)
	ds.lru.Remove(oldestKey)
}
