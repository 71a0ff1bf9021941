// Package cache implements the last-known-good caches for chats, chat
// details and the user directory.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is a cached value stamped with its write time.
type Entry[K comparable, V any] struct {
	Key      K
	Value    V
	CachedAt time.Time
}

// Stale reports whether the entry is older than ttl at now.
func (e Entry[K, V]) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CachedAt) > ttl
}

// Backend persists cache entries. The cache writes through to it after each
// in-memory mutation and hydrates from it in Load.
type Backend[K comparable, V any] interface {
	Load(ctx context.Context) ([]Entry[K, V], error)
	Put(ctx context.Context, e Entry[K, V]) error
	ReplaceAll(ctx context.Context, entries []Entry[K, V]) error
	Delete(ctx context.Context, key K) error
	Clear(ctx context.Context) error
}

// Option configures a cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp and age entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// KeyedCache is a staleness-aware map with insertion order. Entries never
// expire on their own; age only matters to IsFresh.
type KeyedCache[K comparable, V any] struct {
	// wmu serializes mutations so the backend sees them in memory order.
	wmu sync.Mutex

	mu      sync.RWMutex
	entries map[K]Entry[K, V]
	order   []K

	now     func() time.Time
	backend Backend[K, V]
}

// NewKeyed creates an empty cache. backend may be nil for a memory-only cache.
func NewKeyed[K comparable, V any](backend Backend[K, V], opts ...Option) *KeyedCache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &KeyedCache[K, V]{
		entries: make(map[K]Entry[K, V]),
		now:     o.now,
		backend: backend,
	}
}

// Load replaces the in-memory contents with what the backend holds.
// Entries keep their persisted write time.
func (c *KeyedCache[K, V]) Load(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	loaded, err := c.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	entries, order := index(loaded)
	c.swap(entries, order)
	return nil
}

// Put inserts or overwrites the value for key, stamping the current time.
// An overwritten key keeps its position in All.
func (c *KeyedCache[K, V]) Put(ctx context.Context, key K, value V) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	e := Entry[K, V]{Key: key, Value: value, CachedAt: c.now()}
	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = e
	c.mu.Unlock()

	if c.backend == nil {
		return nil
	}
	if err := c.backend.Put(ctx, e); err != nil {
		return fmt.Errorf("persist entry: %w", err)
	}
	return nil
}

// Get returns the value for key regardless of its age.
func (c *KeyedCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.Value, ok
}

// Entry returns the value for key along with its write time.
func (c *KeyedCache[K, V]) Entry(key K) (Entry[K, V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// IsFresh reports whether key is present and was written no more than ttl ago.
func (c *KeyedCache[K, V]) IsFresh(key K, ttl time.Duration) bool {
	e, ok := c.Entry(key)
	if !ok {
		return false
	}
	return !e.Stale(c.now(), ttl)
}

// All returns every cached value in insertion order.
func (c *KeyedCache[K, V]) All() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k].Value)
	}
	return out
}

// Entries returns every entry in insertion order.
func (c *KeyedCache[K, V]) Entries() []Entry[K, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry[K, V], 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k])
	}
	return out
}

// Len returns the number of cached keys.
func (c *KeyedCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// ReplaceAll drops every entry and inserts values, keyed by keyFn. The new
// contents are built aside and swapped in under the lock, so readers see
// either the old set or the new one.
func (c *KeyedCache[K, V]) ReplaceAll(ctx context.Context, values []V, keyFn func(V) K) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	now := c.now()
	fresh := make([]Entry[K, V], 0, len(values))
	for _, v := range values {
		fresh = append(fresh, Entry[K, V]{Key: keyFn(v), Value: v, CachedAt: now})
	}
	entries, order := index(fresh)
	c.swap(entries, order)

	if c.backend == nil {
		return nil
	}
	persisted := make([]Entry[K, V], 0, len(order))
	for _, k := range order {
		persisted = append(persisted, entries[k])
	}
	if err := c.backend.ReplaceAll(ctx, persisted); err != nil {
		return fmt.Errorf("persist replace: %w", err)
	}
	return nil
}

// Remove deletes key if present.
func (c *KeyedCache[K, V]) Remove(ctx context.Context, key K) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if c.backend == nil {
		return nil
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	return nil
}

// Clear drops every entry.
func (c *KeyedCache[K, V]) Clear(ctx context.Context) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.swap(make(map[K]Entry[K, V]), nil)

	if c.backend == nil {
		return nil
	}
	if err := c.backend.Clear(ctx); err != nil {
		return fmt.Errorf("persist clear: %w", err)
	}
	return nil
}

func (c *KeyedCache[K, V]) swap(entries map[K]Entry[K, V], order []K) {
	c.mu.Lock()
	c.entries = entries
	c.order = order
	c.mu.Unlock()
}

// index builds the lookup map and key order for a batch. A duplicate key
// keeps its first position and its last value.
func index[K comparable, V any](batch []Entry[K, V]) (map[K]Entry[K, V], []K) {
	entries := make(map[K]Entry[K, V], len(batch))
	order := make([]K, 0, len(batch))
	for _, e := range batch {
		if _, ok := entries[e.Key]; !ok {
			order = append(order, e.Key)
		}
		entries[e.Key] = e
	}
	return entries, order
}
