package domain

import (
	"melodia/internal/apperr"
	"melodia/internal/memtable"
)

type AudioFileEventKind int

const (
	AudioFileEventCreated AudioFileEventKind = iota
	AudioFileEventFound
	AudioFileEventBoundToAlbum
	AudioFileEventUnboundFromAlbum
	AudioFileEventParticipantAdded
	AudioFileEventGenreAdded
	AudioFileEventDeleted
)

type AudioFileEvent struct {
	Kind      AudioFileEventKind
	AudioFile int64
	Vers      int64
	Payload   any
}

func (e AudioFileEvent) AggregateID() int64 { return e.AudioFile }
func (e AudioFileEvent) Version() int64     { return e.Vers }

// TechnicalInfo carries the probed technical attributes of an audio file.
type TechnicalInfo struct {
	DurationSeconds int
	BitRateKbps     int
	SampleRateHz    int
	Channels        int
	BitDepth        int
}

// AudioFile is the per-track aggregate.
type AudioFile struct {
	ID            int64
	LibraryItemID int64
	Path          MediaPath
	Suffix        string
	Size          int64
	Technical     TechnicalInfo
	Title         string
	AlbumID       *int64
	ArtistID      *int64
	Participants  []Participant
	GenreID       *int64
	GenreIDs      []int64
	HasCoverArt   bool
	Version       int64
	PendingEvents []AudioFileEvent
}

func NewAudioFile(id int64, item FileMeta, technical TechnicalInfo, title string) *AudioFile {
	return &AudioFile{
		ID:        id,
		Path:      item.Path,
		Suffix:    item.Suffix,
		Size:      item.Size,
		Technical: technical,
		Title:     title,
	}
}

func (a *AudioFile) record(kind AudioFileEventKind, payload any) {
	a.Version++
	a.PendingEvents = append(a.PendingEvents, AudioFileEvent{
		Kind: kind, AudioFile: a.ID, Vers: a.Version, Payload: payload,
	})
}

// BindToAlbum fails if already bound.
func (a *AudioFile) BindToAlbum(albumID int64) error {
	if a.AlbumID != nil {
		return apperr.ConflictingState("audio file already bound to an album")
	}
	a.AlbumID = &albumID
	a.record(AudioFileEventBoundToAlbum, albumID)
	return nil
}

// UnbindFromAlbum fails if not bound.
func (a *AudioFile) UnbindFromAlbum() error {
	if a.AlbumID == nil {
		return apperr.ConflictingState("audio file not bound to an album")
	}
	a.AlbumID = nil
	a.record(AudioFileEventUnboundFromAlbum, nil)
	return nil
}

// AddParticipant appends only if not structurally present (same artist id,
// role, and sub-role). The first participant added, if ArtistID is unset,
// also becomes the primary artist.
func (a *AudioFile) AddParticipant(p Participant) {
	for _, existing := range a.Participants {
		if existing.ArtistID == p.ArtistID && existing.Role == p.Role && subRoleEqual(existing.SubRole, p.SubRole) {
			return
		}
	}
	a.Participants = append(a.Participants, p)
	if a.ArtistID == nil {
		artistID := p.ArtistID
		a.ArtistID = &artistID
	}
	a.record(AudioFileEventParticipantAdded, p)
}

func subRoleEqual(a, b *ParticipantSubRole) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// BindToGenre is idempotent; the first bound genre is also the primary
// genre.
func (a *AudioFile) BindToGenre(genreID int64) {
	for _, g := range a.GenreIDs {
		if g == genreID {
			return
		}
	}
	a.GenreIDs = append(a.GenreIDs, genreID)
	if a.GenreID == nil {
		id := genreID
		a.GenreID = &id
	}
	a.record(AudioFileEventGenreAdded, genreID)
}

// Delete fails when the file has any album, participants, or genres bound.
func (a *AudioFile) Delete() error {
	if a.AlbumID != nil || len(a.Participants) > 0 || len(a.GenreIDs) > 0 {
		return apperr.ConflictingState("cannot delete audio file with bindings")
	}
	a.record(AudioFileEventDeleted, nil)
	return nil
}

// Quality derives quality classification from suffix + technical info.
func (a *AudioFile) Quality() AudioQuality {
	return ClassifyQuality(a.Suffix, a.Technical.SampleRateHz, a.Technical.BitDepth, a.Technical.BitRateKbps)
}

func (a *AudioFile) TakeEvents() []AudioFileEvent {
	e := a.PendingEvents
	a.PendingEvents = nil
	return e
}

type AudioFileRepository interface {
	Save(a *AudioFile) error
	FindByID(id int64) (*AudioFile, error)
	FindByPath(path MediaPath) (*AudioFile, error)
}

func (a *AudioFile) GetKey() int64 { return a.ID }

func (a *AudioFile) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "path", Value: a.Path.String(), Kind: memtable.IndexExact}}
}
