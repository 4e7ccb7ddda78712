package domain

import "melodia/internal/memtable"

type GenreEventKind int

const (
	GenreEventCreated GenreEventKind = iota
	GenreEventFound
)

type GenreEvent struct {
	Kind    GenreEventKind
	GenreID int64
	Vers    int64
}

func (e GenreEvent) AggregateID() int64 { return e.GenreID }
func (e GenreEvent) Version() int64     { return e.Vers }

// Genre is keyed by its canonical (lower-cased) name.
type Genre struct {
	ID            int64
	Name          string
	CanonicalName string
	Version       int64
	PendingEvents []GenreEvent
}

func NewGenre(id int64, name, canonicalName string) *Genre {
	return &Genre{ID: id, Name: name, CanonicalName: canonicalName}
}

func (g *Genre) MarkCreated() {
	g.Version++
	g.PendingEvents = append(g.PendingEvents, GenreEvent{Kind: GenreEventCreated, GenreID: g.ID, Vers: g.Version})
}

func (g *Genre) MarkFound() {
	g.Version++
	g.PendingEvents = append(g.PendingEvents, GenreEvent{Kind: GenreEventFound, GenreID: g.ID, Vers: g.Version})
}

func (g *Genre) TakeEvents() []GenreEvent {
	e := g.PendingEvents
	g.PendingEvents = nil
	return e
}

type GenreRepository interface {
	Save(g *Genre) error
	FindByID(id int64) (*Genre, error)
	FindByCanonicalName(name string) (*Genre, error)
}

func (g *Genre) GetKey() int64 { return g.ID }

func (g *Genre) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "canonical_name", Value: g.CanonicalName, Kind: memtable.IndexExact}}
}
