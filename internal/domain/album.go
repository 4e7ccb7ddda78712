package domain

import "melodia/internal/memtable"

// AlbumEventKind enumerates the events an Album aggregate can emit.
type AlbumEventKind int

const (
	AlbumEventCreated AlbumEventKind = iota
	AlbumEventFound
	AlbumEventBound
)

type AlbumEvent struct {
	Kind    AlbumEventKind
	AlbumID int64
	Vers    int64
	Payload any
}

func (e AlbumEvent) AggregateID() int64 { return e.AlbumID }
func (e AlbumEvent) Version() int64     { return e.Vers }

// Album is keyed by a normalized sort name (NormalizeSortName of its title).
type Album struct {
	ID            int64
	Name          string
	SortName      string
	Year          *int
	ArtistIDs     []int64
	GenreIDs      []int64
	Version       int64
	PendingEvents []AlbumEvent
}

func NewAlbum(id int64, name, sortName string) *Album {
	return &Album{ID: id, Name: name, SortName: sortName}
}

func (a *Album) record(kind AlbumEventKind, payload any) {
	a.Version++
	a.PendingEvents = append(a.PendingEvents, AlbumEvent{Kind: kind, AlbumID: a.ID, Vers: a.Version, Payload: payload})
}

// MarkCreated/MarkFound are called by the ensure-handler right after
// construction or lookup, so the emitted event always carries the post-op
// version.
func (a *Album) MarkCreated() { a.record(AlbumEventCreated, nil) }
func (a *Album) MarkFound()   { a.record(AlbumEventFound, nil) }

// BindCmd is the batched binding command a coordinator issues once all
// prerequisites for one correlation id are ready.
type BindCmd struct {
	AlbumID     int64
	AudioFileID *int64 // set by BindToAudioFile always, and by BindToAlbum once the source file is known
	GenreIDs    []int64
	Artists     []ArtistBinding
}

type ArtistBinding struct {
	ArtistID int64
	Role     ParticipantRole
	SubRole  *ParticipantSubRole
}

// Bind performs the many-to-many linking described by cmd in one aggregate
// mutation, recording which artists/genres are now associated with the
// album.
func (a *Album) Bind(cmd BindCmd) {
	seen := make(map[int64]bool, len(a.ArtistIDs))
	for _, id := range a.ArtistIDs {
		seen[id] = true
	}
	for _, ab := range cmd.Artists {
		if !seen[ab.ArtistID] {
			a.ArtistIDs = append(a.ArtistIDs, ab.ArtistID)
			seen[ab.ArtistID] = true
		}
	}
	genreSeen := make(map[int64]bool, len(a.GenreIDs))
	for _, id := range a.GenreIDs {
		genreSeen[id] = true
	}
	for _, id := range cmd.GenreIDs {
		if !genreSeen[id] {
			a.GenreIDs = append(a.GenreIDs, id)
			genreSeen[id] = true
		}
	}
	a.record(AlbumEventBound, cmd)
}

func (a *Album) TakeEvents() []AlbumEvent {
	e := a.PendingEvents
	a.PendingEvents = nil
	return e
}

type AlbumRepository interface {
	Save(a *Album) error
	FindByID(id int64) (*Album, error)
	FindBySortName(sortName string) (*Album, error)
}

func (a *Album) GetKey() int64 { return a.ID }

func (a *Album) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "sort_name", Value: a.SortName, Kind: memtable.IndexExact}}
}
