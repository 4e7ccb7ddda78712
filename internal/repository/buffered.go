package repository

import (
	"cmp"
	"context"

	"melodia/internal/memtable"
)

// Store is the backing-store read port a buffered repository falls back to
// once the active/immutable memtables and the LRU cache all miss.
type Store[K cmp.Ordered, V any] interface {
	Load(ctx context.Context, key K) (V, bool, error)
}

// cachedReader is the memtable.Reader adapter that fronts Store with an LRU.
type cachedReader[K cmp.Ordered, V any] struct {
	cache *LRU[K, V]
	store Store[K, V]
}

func (r *cachedReader[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, true, nil
	}
	v, ok, err := r.store.Load(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	r.cache.Put(key, v)
	return v, true, nil
}

// Buffered composes a memtable.Context, an LRU read cache, and a Store into
// the one generic shape every per-aggregate repository wraps. This is the
// "buffered implementation" spec.md's repositories section calls for: every
// aggregate gets the same machinery through this one type plus a small
// per-aggregate adapter (the Value[K] methods already on the aggregate, and
// a concrete Store/Persister pair backed by pgx).
type Buffered[K cmp.Ordered, V memtable.Value[K]] struct {
	mem    *memtable.Context[K, V]
	cache  *LRU[K, V]
	reader *cachedReader[K, V]
}

func NewBuffered[K cmp.Ordered, V memtable.Value[K]](mem *memtable.Context[K, V], cacheCapacity int, store Store[K, V]) *Buffered[K, V] {
	cache := NewLRU[K, V](cacheCapacity)
	return &Buffered[K, V]{
		mem:    mem,
		cache:  cache,
		reader: &cachedReader[K, V]{cache: cache, store: store},
	}
}

// Save writes through the memtable; the memtable's own rotation/flush
// protocol is what eventually persists it via the wired Persister.
func (b *Buffered[K, V]) Save(ctx context.Context, v V) {
	b.mem.Insert(ctx, v)
	b.cache.Put(v.GetKey(), v)
}

// Get consults active memtable, immutable memtable, LRU, then Store, in
// that order (memtable.Context.Get already implements the first three
// hops against the Reader we hand it).
func (b *Buffered[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return b.mem.Get(ctx, key, b.reader)
}

// GetByIndex resolves an exact secondary index against the memtable only;
// callers whose index also needs a backing-store fallback (the common case
// for natural-key lookups after a cold start) combine this with their own
// Store.LoadByIndex-style method.
func (b *Buffered[K, V]) GetByIndex(name, value string) (V, bool) {
	return b.mem.GetByIndex(name, value)
}

func (b *Buffered[K, V]) Remove(key K) {
	b.mem.Remove(key)
	b.cache.Remove(key)
}
