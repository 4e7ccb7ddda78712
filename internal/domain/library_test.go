package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary() *Library {
	return NewLibrary(1, "music", MediaPath{Protocol: "local", Path: "/music"})
}

func TestLibraryScanStartedWhileScanningFails(t *testing.T) {
	lib := newTestLibrary()
	require.NoError(t, lib.StartScan(false))
	err := lib.StartScan(false)
	require.Error(t, err)
}

func TestLibraryAddItemThenFinishScanRemovesUnvisited(t *testing.T) {
	lib := newTestLibrary()
	now := time.Now().UTC()

	meta := func(path string) FileMeta {
		return FileMeta{Path: MediaPath{Protocol: "local", Path: path}, Mtime: now, Atime: now, Suffix: "mp3"}
	}

	require.NoError(t, lib.StartScan(false))
	lib.TakeEvents()

	lib.AddItem(NewLibraryItem(10, lib.ID, meta("/music/a.mp3"), FileTypeAudio))
	lib.AddItem(NewLibraryItem(11, lib.ID, meta("/music/b.mp3"), FileTypeAudio))
	events := lib.TakeEvents()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, LibraryEventFileAdded, e.Kind)
	}

	lib.FinishScan()
	events = lib.TakeEvents()
	// nothing removed: both items were re-added this scan.
	for _, e := range events {
		assert.NotEqual(t, LibraryEventFileRemoved, e.Kind)
	}
	assert.Len(t, lib.Items, 2)

	// second scan: only re-add "a", "b" should be removed.
	require.NoError(t, lib.StartScan(false))
	lib.TakeEvents()
	lib.AddItem(NewLibraryItem(10, lib.ID, meta("/music/a.mp3"), FileTypeAudio))
	lib.TakeEvents()
	lib.FinishScan()
	events = lib.TakeEvents()

	removed := 0
	for _, e := range events {
		if e.Kind == LibraryEventFileRemoved {
			removed++
			assert.Equal(t, "/music/b.mp3", e.Path.Path)
		}
	}
	assert.Equal(t, 1, removed, "exactly one FileRemoved for the unvisited item")
	assert.Len(t, lib.Items, 1)
}

func TestLibraryAbortScanRestoresOriginWithoutRemovals(t *testing.T) {
	lib := newTestLibrary()
	now := time.Now().UTC()
	meta := FileMeta{Path: MediaPath{Protocol: "local", Path: "/music/a.mp3"}, Mtime: now, Atime: now, Suffix: "mp3"}

	lib.AddItem(NewLibraryItem(1, lib.ID, meta, FileTypeAudio))
	lib.TakeEvents()

	require.NoError(t, lib.StartScan(false))
	lib.TakeEvents()
	lib.AbortScan()
	events := lib.TakeEvents()

	for _, e := range events {
		assert.NotEqual(t, LibraryEventFileRemoved, e.Kind)
	}
	assert.Len(t, lib.Items, 1)
	for _, item := range lib.Items {
		assert.Equal(t, LibraryItemOrigin, item.State)
	}
}

func TestLibraryAddItemDetectsMtimeChange(t *testing.T) {
	lib := newTestLibrary()
	t0 := time.Now().UTC()
	path := MediaPath{Protocol: "local", Path: "/music/a.mp3"}

	lib.AddItem(NewLibraryItem(1, lib.ID, FileMeta{Path: path, Mtime: t0, Atime: t0, Suffix: "mp3"}, FileTypeAudio))
	lib.TakeEvents()

	t1 := t0.Add(time.Hour)
	lib.AddItem(NewLibraryItem(1, lib.ID, FileMeta{Path: path, Mtime: t1, Atime: t0, Suffix: "mp3"}, FileTypeAudio))
	events := lib.TakeEvents()

	require.Len(t, events, 1)
	assert.Equal(t, LibraryEventFileUpdated, events[0].Kind)
	assert.Equal(t, LibraryItemUpdated, lib.Items["/music/a.mp3"].State)
}

func TestLibraryAddItemNoChangeLeavesOrigin(t *testing.T) {
	lib := newTestLibrary()
	t0 := time.Now().UTC()
	path := MediaPath{Protocol: "local", Path: "/music/a.mp3"}
	meta := FileMeta{Path: path, Mtime: t0, Atime: t0, Suffix: "mp3"}

	lib.AddItem(NewLibraryItem(1, lib.ID, meta, FileTypeAudio))
	lib.TakeEvents()
	lib.AddItem(NewLibraryItem(1, lib.ID, meta, FileTypeAudio))
	events := lib.TakeEvents()

	assert.Empty(t, events)
	assert.Equal(t, LibraryItemOrigin, lib.Items["/music/a.mp3"].State)
}
