package projector

import (
	"strconv"

	"melodia/internal/memtable"
)

// AlbumStats is the read-model row album_stats projects onto: the running
// totals attributable to every AudioFile currently bound to one album.
type AlbumStats struct {
	AlbumID         int64
	SongCount       int
	DurationSeconds int64
	SizeBytes       int64
}

func (s *AlbumStats) GetKey() int64                             { return s.AlbumID }
func (s *AlbumStats) SecondaryIndexes() []memtable.IndexDescriptor { return nil }

// ParticipantStats rolls up per (artist, role): an artist credited as both
// AlbumArtist and Performer on different tracks gets two independent rows.
type ParticipantStats struct {
	ArtistID        int64
	Role            int
	SongCount       int
	DurationSeconds int64
}

func participantKey(artistID int64, role int) string {
	return strconv.FormatInt(artistID, 10) + ":" + strconv.Itoa(role)
}

func (s *ParticipantStats) GetKey() string                           { return participantKey(s.ArtistID, s.Role) }
func (s *ParticipantStats) SecondaryIndexes() []memtable.IndexDescriptor { return nil }

// GenreStats rolls up every AudioFile bound to one genre.
type GenreStats struct {
	GenreID         int64
	SongCount       int
	DurationSeconds int64
}

func (s *GenreStats) GetKey() int64                             { return s.GenreID }
func (s *GenreStats) SecondaryIndexes() []memtable.IndexDescriptor { return nil }
