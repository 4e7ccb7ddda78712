package memtable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"melodia/internal/apperr"
)

type testRow struct {
	Key  int64
	Name string
}

func (r testRow) GetKey() int64 { return r.Key }

func (r testRow) SecondaryIndexes() []IndexDescriptor {
	return []IndexDescriptor{
		{Name: "by_name", Value: r.Name, Kind: IndexExact},
		{Name: "by_prefix", Value: r.Name, Kind: IndexPrefix},
	}
}

func TestMemtableLastWriteWinsWithTombstone(t *testing.T) {
	m := New[int64, testRow]()
	m.Insert(testRow{Key: 1, Name: "alpha"})
	m.Insert(testRow{Key: 1, Name: "beta"})

	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "beta", v.Name)

	// old index value must be gone, new one present
	_, ok = m.GetByIndex("by_name", "alpha")
	assert.False(t, ok)
	v, ok = m.GetByIndex("by_name", "beta")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Key)

	m.Remove(1)
	_, ok = m.Get(1)
	assert.False(t, ok, "tombstone overrides")
	_, ok = m.GetByIndex("by_name", "beta")
	assert.False(t, ok, "index skips tombstoned keys")
}

func TestMemtableFindByPrefix(t *testing.T) {
	m := New[int64, testRow]()
	m.Insert(testRow{Key: 1, Name: "album:rock"})
	m.Insert(testRow{Key: 2, Name: "album:pop"})
	m.Insert(testRow{Key: 3, Name: "artist:who"})

	keys := m.FindByPrefix("by_prefix", "album:")
	assert.ElementsMatch(t, []int64{1, 2}, keys)

	m.Remove(2)
	keys = m.FindByPrefix("by_prefix", "album:")
	assert.ElementsMatch(t, []int64{1}, keys)
}

type fakePersister struct {
	mu        sync.Mutex
	persisted map[int64]testRow
	removed   map[int64]bool
	batches   int32
}

func newFakePersister() *fakePersister {
	return &fakePersister{persisted: map[int64]testRow{}, removed: map[int64]bool{}}
}

func (p *fakePersister) Persist(ctx context.Context, key int64, value testRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted[key] = value
	return nil
}

func (p *fakePersister) Remove(ctx context.Context, key int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed[key] = true
	return nil
}

func TestContextRotationBackpressure(t *testing.T) {
	fp := newFakePersister()
	bp := NewBoundedPersister[int64, testRow](fp, 3, nil)
	ctx := NewContext[int64, testRow](5, time.Hour, bp, nil)

	const n = 23
	for i := int64(0); i < n; i++ {
		ctx.Insert(context.Background(), testRow{Key: i, Name: fmt.Sprintf("item-%d", i)})
	}

	// every insert that crossed the threshold waited for its own flush, so
	// by the time Insert returns for the last item, all prior generations
	// are already durably persisted.
	deadline := time.Now().Add(2 * time.Second)
	for {
		fp.mu.Lock()
		count := len(fp.persisted)
		fp.mu.Unlock()
		if count >= n-ctx.sizeThreshold { // last partial generation may still be in the active table
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flush did not complete in time, persisted=%d", count)
		}
		time.Sleep(time.Millisecond)
	}

	ctx.immutableMu.Lock()
	imm := ctx.immutable
	ctx.immutableMu.Unlock()
	assert.Nil(t, imm, "at most one immutable memtable resident, and it should have cleared after flush")
}

func TestContextShutdownGracefully(t *testing.T) {
	fp := newFakePersister()
	bp := NewBoundedPersister[int64, testRow](fp, 3, nil)
	ctx := NewContext[int64, testRow](1000, time.Hour, bp, nil)

	ctx.Insert(context.Background(), testRow{Key: 1, Name: "solo"})
	count := ctx.ShutdownGracefully(500 * time.Millisecond)
	require.NotNil(t, count)
	assert.Equal(t, 1, *count)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	assert.Contains(t, fp.persisted, int64(1))
}

func TestContextShutdownGracefullyEmpty(t *testing.T) {
	fp := newFakePersister()
	bp := NewBoundedPersister[int64, testRow](fp, 3, nil)
	ctx := NewContext[int64, testRow](1000, time.Hour, bp, nil)

	count := ctx.ShutdownGracefully(10 * time.Millisecond)
	assert.Nil(t, count)
}

type conflictPersister struct {
	calls int32
}

func (p *conflictPersister) Persist(ctx context.Context, key int64, value testRow) error {
	atomic.AddInt32(&p.calls, 1)
	return apperr.VersionConflict(1, 2)
}

func (p *conflictPersister) Remove(ctx context.Context, key int64) error { return nil }

func TestPersisterTreatsVersionConflictAsSuccessWithoutRetry(t *testing.T) {
	// A persister reporting apperr.VersionConflict is called exactly once
	// (no retry loop) and the write is reported as a success.
	cp := &conflictPersister{}
	bp := NewBoundedPersister[int64, testRow](cp, 1, nil)
	err := bp.persistWithRetry(context.Background(), 1, testRow{Key: 1, Name: "x"})
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cp.calls))
}
