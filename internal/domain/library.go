package domain

import (
	"time"

	"melodia/internal/apperr"
	"melodia/internal/memtable"
)

type ScanStatus int

const (
	ScanStatusIdle ScanStatus = iota
	ScanStatusScanning
)

type LibraryItemState int

const (
	LibraryItemNew LibraryItemState = iota
	LibraryItemDeleted
	LibraryItemUpdated
	LibraryItemOrigin
)

type LibraryItem struct {
	ID        int64
	LibraryID int64
	Path      MediaPath
	Size      int64
	Suffix    string
	Mtime     time.Time
	Atime     time.Time
	State     LibraryItemState
	FileType  FileType
}

// NewLibraryItem builds a fresh item in state New, per FileMeta observed at
// scan time.
func NewLibraryItem(id, libraryID int64, file FileMeta, fileType FileType) LibraryItem {
	return LibraryItem{
		ID:        id,
		LibraryID: libraryID,
		Path:      file.Path,
		Size:      file.Size,
		Suffix:    file.Suffix,
		Mtime:     file.Mtime,
		Atime:     file.Atime,
		State:     LibraryItemNew,
		FileType:  fileType,
	}
}

// --- events ---

type LibraryEventKind int

const (
	LibraryEventFileAdded LibraryEventKind = iota
	LibraryEventFileUpdated
	LibraryEventFileRemoved
	LibraryEventScanStarted
	LibraryEventScanEnded
)

type LibraryEvent struct {
	Kind      LibraryEventKind
	LibraryID int64
	Vers      int64
	Item      *LibraryItem // FileAdded, FileUpdated
	Path      *MediaPath   // FileRemoved
}

func (e LibraryEvent) AggregateID() int64 { return e.LibraryID }
func (e LibraryEvent) Version() int64     { return e.Vers }

// Library is the scan-target aggregate: a root path plus the set of items
// observed under it, diffed on every scan.
type Library struct {
	ID            int64
	Name          string
	Path          MediaPath
	Items         map[string]LibraryItem // keyed by path string
	ScanStatus    ScanStatus
	Version       int64
	LastScanAt    time.Time
	PendingEvents []LibraryEvent
}

func NewLibrary(id int64, name string, path MediaPath) *Library {
	return &Library{
		ID:         id,
		Name:       name,
		Path:       path,
		Items:      make(map[string]LibraryItem),
		ScanStatus: ScanStatusIdle,
		LastScanAt: time.Unix(0, 0).UTC(),
	}
}

// StartScan fails if a scan is already in progress; otherwise pre-marks every
// item Deleted (survivors are re-established by subsequent AddItem calls),
// resets LastScanAt to epoch on a full scan, and emits ScanStarted.
func (l *Library) StartScan(fullScan bool) error {
	if l.ScanStatus == ScanStatusScanning {
		return apperr.ConflictingState("library is already scanning")
	}
	l.ScanStatus = ScanStatusScanning
	if fullScan {
		l.LastScanAt = time.Unix(0, 0).UTC()
	}
	for path, item := range l.Items {
		item.State = LibraryItemDeleted
		l.Items[path] = item
		l.Version++
	}
	l.PendingEvents = append(l.PendingEvents, LibraryEvent{
		Kind: LibraryEventScanStarted, LibraryID: l.ID, Vers: l.Version,
	})
	return nil
}

// AddItem upserts by path. If new, inserts with state New and emits
// FileAdded. If present, compares the incoming item's mtime/atime against
// the stored item's and promotes to Updated with FileUpdated when they
// differ, otherwise leaves the item Origin.
//
// The original implementation compared a stored field to itself
// (item.mtime != item.mtime), which can never detect a change; this compares
// the incoming item against what is already stored, per the intended
// mtime-change detection.
func (l *Library) AddItem(incoming LibraryItem) {
	key := incoming.Path.Path
	if existing, ok := l.Items[key]; ok {
		if !incoming.Mtime.Equal(existing.Mtime) || !incoming.Atime.Equal(existing.Atime) {
			existing.State = LibraryItemUpdated
			existing.Mtime = incoming.Mtime
			existing.Atime = incoming.Atime
			existing.Size = incoming.Size
			l.Items[key] = existing
			l.PendingEvents = append(l.PendingEvents, LibraryEvent{
				Kind: LibraryEventFileUpdated, LibraryID: l.ID, Vers: l.Version, Item: &existing,
			})
		} else {
			existing.State = LibraryItemOrigin
			l.Items[key] = existing
		}
	} else {
		l.Items[key] = incoming
		item := incoming
		l.PendingEvents = append(l.PendingEvents, LibraryEvent{
			Kind: LibraryEventFileAdded, LibraryID: l.ID, Vers: l.Version, Item: &item,
		})
	}
	l.Version++
}

// FinishScan removes everything still in state Deleted, emitting
// FileRemoved for each, then emits ScanEnded.
func (l *Library) FinishScan() {
	if l.ScanStatus != ScanStatusIdle {
		l.ScanStatus = ScanStatusIdle
		l.LastScanAt = time.Now().UTC()
	}
	var toRemove []string
	for path, item := range l.Items {
		if item.State == LibraryItemDeleted {
			toRemove = append(toRemove, path)
			removedPath := MediaPath{Protocol: l.Path.Protocol, Path: path}
			l.PendingEvents = append(l.PendingEvents, LibraryEvent{
				Kind: LibraryEventFileRemoved, LibraryID: l.ID, Vers: l.Version, Path: &removedPath,
			})
		}
	}
	for _, path := range toRemove {
		delete(l.Items, path)
	}
	l.PendingEvents = append(l.PendingEvents, LibraryEvent{
		Kind: LibraryEventScanEnded, LibraryID: l.ID, Vers: l.Version,
	})
}

// AbortScan restores all items to Origin and emits ScanEnded. LastScanAt is
// NOT updated.
func (l *Library) AbortScan() {
	if l.ScanStatus == ScanStatusScanning {
		l.ScanStatus = ScanStatusIdle
		l.PendingEvents = append(l.PendingEvents, LibraryEvent{
			Kind: LibraryEventScanEnded, LibraryID: l.ID, Vers: l.Version,
		})
		for path, item := range l.Items {
			item.State = LibraryItemOrigin
			l.Items[path] = item
			l.Version++
		}
	}
}

// TakeEvents drains and returns the pending event queue.
func (l *Library) TakeEvents() []LibraryEvent {
	events := l.PendingEvents
	l.PendingEvents = nil
	return events
}

// LibraryRepository is the port a buffered repository implements.
type LibraryRepository interface {
	Save(lib *Library) error
	FindByID(id int64) (*Library, error)
}

func (l *Library) GetKey() int64 { return l.ID }

func (l *Library) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "path", Value: l.Path.String(), Kind: memtable.IndexExact}}
}
