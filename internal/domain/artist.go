package domain

import "melodia/internal/memtable"

type ArtistEventKind int

const (
	ArtistEventCreated ArtistEventKind = iota
	ArtistEventFound
)

type ArtistEvent struct {
	Kind     ArtistEventKind
	ArtistID int64
	Vers     int64
}

func (e ArtistEvent) AggregateID() int64 { return e.ArtistID }
func (e ArtistEvent) Version() int64     { return e.Vers }

// Artist is keyed by its normalized name (ignored-articles stripped,
// lower-cased).
type Artist struct {
	ID            int64
	Name          string
	SortName      string
	Version       int64
	PendingEvents []ArtistEvent
}

func NewArtist(id int64, name, sortName string) *Artist {
	return &Artist{ID: id, Name: name, SortName: sortName}
}

func (a *Artist) MarkCreated() {
	a.Version++
	a.PendingEvents = append(a.PendingEvents, ArtistEvent{Kind: ArtistEventCreated, ArtistID: a.ID, Vers: a.Version})
}

func (a *Artist) MarkFound() {
	a.Version++
	a.PendingEvents = append(a.PendingEvents, ArtistEvent{Kind: ArtistEventFound, ArtistID: a.ID, Vers: a.Version})
}

func (a *Artist) TakeEvents() []ArtistEvent {
	e := a.PendingEvents
	a.PendingEvents = nil
	return e
}

type ArtistRepository interface {
	Save(a *Artist) error
	FindByID(id int64) (*Artist, error)
	FindBySortName(sortName string) (*Artist, error)
}

// GetKey and SecondaryIndexes satisfy memtable.Value[int64], keying Artist
// by id with an exact secondary index on SortName for FindBySortName.
func (a *Artist) GetKey() int64 { return a.ID }

func (a *Artist) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "sort_name", Value: a.SortName, Kind: memtable.IndexExact}}
}
