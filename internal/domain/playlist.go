package domain

import (
	"sort"
	"strconv"

	"melodia/internal/memtable"
)

type PlaylistEventKind int

const (
	PlaylistEventCreated PlaylistEventKind = iota
	PlaylistEventUpdated
	PlaylistEventEntriesAdded
	PlaylistEventEntriesRemoved
	PlaylistEventDeleted
)

type PlaylistEvent struct {
	Kind       PlaylistEventKind
	PlaylistID int64
	Vers       int64
}

func (e PlaylistEvent) AggregateID() int64 { return e.PlaylistID }
func (e PlaylistEvent) Version() int64     { return e.Vers }

type PlaylistEntry struct {
	ID          int64
	AudioFileID int64
}

// Playlist preserves entry order; removal by index list is applied
// descending to avoid shift invalidation.
type Playlist struct {
	ID            int64
	Name          string
	OwnerID       int64
	Comment       string
	Public        bool
	Entries       []PlaylistEntry
	Version       int64
	PendingEvents []PlaylistEvent
}

func NewPlaylist(id, ownerID int64, name string) *Playlist {
	p := &Playlist{ID: id, OwnerID: ownerID, Name: name}
	p.record(PlaylistEventCreated)
	return p
}

func (p *Playlist) record(kind PlaylistEventKind) {
	p.Version++
	p.PendingEvents = append(p.PendingEvents, PlaylistEvent{Kind: kind, PlaylistID: p.ID, Vers: p.Version})
}

func (p *Playlist) AddEntries(entries []PlaylistEntry) {
	p.Entries = append(p.Entries, entries...)
	p.record(PlaylistEventEntriesAdded)
}

// RemoveByIndexes removes entries at the given zero-based indexes, applying
// the removal descending so earlier removals don't shift later indexes out
// from under the caller.
func (p *Playlist) RemoveByIndexes(indexes []int) {
	sorted := append([]int(nil), indexes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, idx := range sorted {
		if idx < 0 || idx >= len(p.Entries) {
			continue
		}
		p.Entries = append(p.Entries[:idx], p.Entries[idx+1:]...)
	}
	p.record(PlaylistEventEntriesRemoved)
}

func (p *Playlist) Rename(name, comment string, public bool) {
	p.Name = name
	p.Comment = comment
	p.Public = public
	p.record(PlaylistEventUpdated)
}

func (p *Playlist) Delete() {
	p.record(PlaylistEventDeleted)
}

func (p *Playlist) TakeEvents() []PlaylistEvent {
	e := p.PendingEvents
	p.PendingEvents = nil
	return e
}

type PlaylistRepository interface {
	Save(p *Playlist) error
	FindByID(id int64) (*Playlist, error)
	FindByOwnerID(ownerID int64) ([]*Playlist, error)
	Delete(id int64) error
}

func (p *Playlist) GetKey() int64 { return p.ID }

func (p *Playlist) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "owner_id", Value: strconv.FormatInt(p.OwnerID, 10), Kind: memtable.IndexPrefix}}
}
