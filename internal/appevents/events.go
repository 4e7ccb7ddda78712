// Package appevents holds cross-aggregate application events that do not
// belong to a single aggregate's event enum — chiefly AudioFileParsed, the
// event the metadata parser emits and both coordinators consume.
package appevents

import "melodia/internal/domain"

// AudioFileParsed carries normalized tag data for one scanned file: the
// expected participant and genre lists a coordinator seeds its rendezvous
// state with, plus the audio file id once it exists.
type AudioFileParsed struct {
	AudioFileID     int64
	Title           string
	AlbumName       string
	Participants    []domain.ParticipantMeta
	Genres          []string
	TrackNumber     *int
	DiscNumber      *int
	Year            *int
	BPM             *int
	Compilation     bool
	Technical       domain.TechnicalInfo
	EmbeddedPicture []byte
	Lyrics          *string
}

func (e AudioFileParsed) AggregateID() int64 { return e.AudioFileID }
func (e AudioFileParsed) Version() int64     { return 0 }
