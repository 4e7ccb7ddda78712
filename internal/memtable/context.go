package memtable

import (
	"cmp"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reader is the fallback consulted after the active and immutable
// memtables miss — normally an LRU-fronted repository.
type Reader[K cmp.Ordered, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
}

// Context wraps one active memtable plus zero-or-one immutable memtable and
// the rotation/flush parameters from spec.md §4.2.
type Context[K cmp.Ordered, V Value[K]] struct {
	activeMu sync.RWMutex
	active   *Memtable[K, V]

	immutableMu sync.Mutex
	immutable   *Memtable[K, V]

	rotateTimeMu sync.Mutex
	rotateTime   time.Time

	sizeMu sync.Mutex
	size   int

	sizeThreshold int
	flushTimeout  time.Duration
	persister     *BoundedPersister[K, V]
	log           *slog.Logger

	tickerStop chan struct{}
	tickerDone chan struct{}
}

func NewContext[K cmp.Ordered, V Value[K]](sizeThreshold int, flushTimeout time.Duration, persister *BoundedPersister[K, V], log *slog.Logger) *Context[K, V] {
	if log == nil {
		log = slog.Default()
	}
	c := &Context[K, V]{
		active:        New[K, V](),
		sizeThreshold: sizeThreshold,
		flushTimeout:  flushTimeout,
		persister:     persister,
		log:           log,
		rotateTime:    time.Now(),
	}
	c.StartAutoFlushTimer()
	return c
}

// Insert writes v into the active memtable. The size counter increments
// only on the first insertion of a key; subsequent updates of the same key
// do not. When the counter reaches the threshold, this call performs the
// rotation itself and blocks until its own flush completes — the
// back-pressure mechanism that keeps a sustained write burst from piling up
// an unbounded chain of immutable generations. Inserts that do not cross
// the threshold return immediately without waiting on any flush.
func (c *Context[K, V]) Insert(ctx context.Context, v V) {
	key := v.GetKey()

	c.activeMu.Lock()
	_, existed := c.active.data[key]
	c.active.Insert(v)
	c.activeMu.Unlock()

	if !existed {
		c.sizeMu.Lock()
		c.size++
		crossed := c.size >= c.sizeThreshold
		c.sizeMu.Unlock()
		if crossed {
			c.rotateAndWait(ctx)
		}
	}
}

// Remove tombstones key in the active memtable.
func (c *Context[K, V]) Remove(key K) {
	c.activeMu.Lock()
	c.active.Remove(key)
	c.activeMu.Unlock()
}

// Get consults active, then immutable, then falls back to fallback (an
// LRU-fronted repository read).
func (c *Context[K, V]) Get(ctx context.Context, key K, fallback Reader[K, V]) (V, bool, error) {
	c.activeMu.RLock()
	if v, ok := c.active.Get(key); ok {
		c.activeMu.RUnlock()
		return v, true, nil
	}
	// an active tombstone must shadow the backing store even if the
	// immutable/backing layers still have the old value.
	if _, tombstoned := c.active.tombstones[key]; tombstoned {
		c.activeMu.RUnlock()
		var zero V
		return zero, false, nil
	}
	c.activeMu.RUnlock()

	c.immutableMu.Lock()
	imm := c.immutable
	c.immutableMu.Unlock()
	if imm != nil {
		if v, ok := imm.Get(key); ok {
			return v, true, nil
		}
		if _, tombstoned := imm.tombstones[key]; tombstoned {
			var zero V
			return zero, false, nil
		}
	}

	if fallback == nil {
		var zero V
		return zero, false, nil
	}
	return fallback.Get(ctx, key)
}

// GetByIndex resolves an exact secondary index across active then
// immutable.
func (c *Context[K, V]) GetByIndex(name, value string) (V, bool) {
	c.activeMu.RLock()
	if v, ok := c.active.GetByIndex(name, value); ok {
		c.activeMu.RUnlock()
		return v, true
	}
	c.activeMu.RUnlock()

	c.immutableMu.Lock()
	imm := c.immutable
	c.immutableMu.Unlock()
	if imm != nil {
		return imm.GetByIndex(name, value)
	}
	var zero V
	return zero, false
}

// FindByPrefix merges results from active and immutable.
func (c *Context[K, V]) FindByPrefix(name, prefix string) []K {
	c.activeMu.RLock()
	activeKeys := c.active.FindByPrefix(name, prefix)
	c.activeMu.RUnlock()

	c.immutableMu.Lock()
	imm := c.immutable
	c.immutableMu.Unlock()

	if imm == nil {
		return activeKeys
	}
	immKeys := imm.FindByPrefix(name, prefix)
	seen := make(map[K]struct{}, len(activeKeys))
	out := append([]K(nil), activeKeys...)
	for _, k := range activeKeys {
		seen[k] = struct{}{}
	}
	for _, k := range immKeys {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// rotateAndWait performs the rotation protocol from spec.md §4.2 steps 1-8
// and waits for the spawned flush to complete.
func (c *Context[K, V]) rotateAndWait(ctx context.Context) {
	done := c.rotate()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// rotate executes steps 1-7 and returns a channel closed when the spawned
// flush completes, or nil if the active memtable was empty.
func (c *Context[K, V]) rotate() <-chan struct{} {
	c.activeMu.Lock()
	if c.active.Len() == 0 {
		c.activeMu.Unlock()
		return nil
	}
	flushing := c.active
	c.active = New[K, V]()
	c.activeMu.Unlock()

	c.sizeMu.Lock()
	c.size = 0
	c.sizeMu.Unlock()

	c.immutableMu.Lock()
	c.immutable = flushing
	c.immutableMu.Unlock()

	c.rotateTimeMu.Lock()
	c.rotateTime = time.Now()
	c.rotateTimeMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bgCtx := context.Background()
		c.persister.PersistBatch(bgCtx, flushing.Items())
		c.persister.RemoveBatch(bgCtx, flushing.Tombstones())
		c.immutableMu.Lock()
		if c.immutable == flushing {
			c.immutable = nil
		}
		c.immutableMu.Unlock()
	}()
	return done
}

// shouldFlushByTimeout reports whether rotate_time + T <= now and the active
// memtable is non-empty.
func (c *Context[K, V]) shouldFlushByTimeout() bool {
	c.rotateTimeMu.Lock()
	due := time.Since(c.rotateTime) >= c.flushTimeout
	c.rotateTimeMu.Unlock()
	if !due {
		return false
	}
	c.activeMu.RLock()
	nonEmpty := c.active.Len() > 0
	c.activeMu.RUnlock()
	return nonEmpty
}

// StartAutoFlushTimer launches a ticker at flushTimeout/2; each tick checks
// shouldFlushByTimeout and, if due, fires a rotation asynchronously so the
// ticker never blocks across the flush await.
func (c *Context[K, V]) StartAutoFlushTimer() {
	if c.tickerStop != nil {
		return
	}
	c.tickerStop = make(chan struct{})
	c.tickerDone = make(chan struct{})
	interval := c.flushTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		defer close(c.tickerDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if c.shouldFlushByTimeout() {
					go c.rotate()
				}
			case <-c.tickerStop:
				return
			}
		}
	}()
}

// ShutdownGracefully forces one rotation regardless of size, then sleeps
// wait to let the flush task finish. Returns the number of items flushed,
// or nil if the memtable was empty.
func (c *Context[K, V]) ShutdownGracefully(wait time.Duration) *int {
	if c.tickerStop != nil {
		close(c.tickerStop)
		<-c.tickerDone
		c.tickerStop = nil
	}

	c.activeMu.RLock()
	count := c.active.Len()
	c.activeMu.RUnlock()
	if count == 0 {
		return nil
	}

	done := c.rotate()
	if done == nil {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
	return &count
}
