// Package cache provides the in-memory entry table behind the ontology
// metadata cache.
//
// Key Features:
//   - Expiry a fixed duration after write, never extended by reads
//   - Generation counter so a write computed before a Clear is dropped
//   - Concurrent readers; writers only block readers of the same table
//   - Hit, miss and expiry statistics
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Table maps keys to values that expire a fixed duration after being written.
type Table[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]tableItem[V]
	generation uint64
	now        func() time.Time

	// Statistics
	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
	dropped atomic.Int64
}

type tableItem[V any] struct {
	value  V
	expiry time.Time
}

// NewTable creates an empty table reading time from now. A nil now uses
// time.Now.
func NewTable[K comparable, V any](now func() time.Time) *Table[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Table[K, V]{
		items: make(map[K]tableItem[V]),
		now:   now,
	}
}

// Get returns the live value for key. An entry is live strictly before its
// expiry instant.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	item, ok := t.items[key]
	t.mu.RUnlock()

	if !ok || !t.now().Before(item.expiry) {
		t.misses.Add(1)
		var zero V
		return zero, false
	}
	t.hits.Add(1)
	return item.value, true
}

// Generation returns the current generation. Pass it to SetIfGeneration to
// store a value computed from state observed at that generation.
func (t *Table[K, V]) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// SetIfGeneration stores value for ttl unless the table was cleared since
// generation was read. It reports whether the value was stored.
func (t *Table[K, V]) SetIfGeneration(key K, value V, ttl time.Duration, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation != generation {
		t.dropped.Add(1)
		return false
	}
	t.items[key] = tableItem[V]{value: value, expiry: t.now().Add(ttl)}
	return true
}

// Set stores value for ttl in the current generation.
func (t *Table[K, V]) Set(key K, value V, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = tableItem[V]{value: value, expiry: t.now().Add(ttl)}
}

// Delete removes key.
func (t *Table[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, key)
}

// Clear removes every entry and starts a new generation. It returns the
// number of entries removed.
func (t *Table[K, V]) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.items)
	t.items = make(map[K]tableItem[V])
	t.generation++
	return n
}

// CleanupExpired removes entries whose expiry has passed and returns how many
// were removed. Expired entries are already invisible to Get.
func (t *Table[K, V]) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, item := range t.items {
		if !now.Before(item.expiry) {
			delete(t.items, key)
			removed++
		}
	}
	t.expired.Add(int64(removed))
	return removed
}

// Len returns the number of stored entries, expired or not.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Stats returns table statistics.
func (t *Table[K, V]) Stats() Stats {
	hits, misses := t.hits.Load(), t.misses.Load()
	hitRate := float64(0)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Expired: t.expired.Load(),
		Dropped: t.dropped.Load(),
		Items:   t.Len(),
		HitRate: hitRate,
	}
}

// Stats holds table statistics. Dropped counts writes refused because the
// table was cleared while the value was being computed.
type Stats struct {
	Hits    int64
	Misses  int64
	Expired int64
	Dropped int64
	Items   int
	HitRate float64
}
