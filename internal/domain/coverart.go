package domain

import (
	"strconv"

	"melodia/internal/apperr"
	"melodia/internal/memtable"
)

type CoverArtSource int

const (
	CoverArtEmbedded CoverArtSource = iota
	CoverArtExternal
	CoverArtDownloaded
	CoverArtGenerated
	CoverArtManual
)

// Priority ranks sources when multiple exist for the same album/artist;
// lower wins.
func (s CoverArtSource) Priority() int {
	switch s {
	case CoverArtManual:
		return 0
	case CoverArtEmbedded:
		return 1
	case CoverArtExternal:
		return 2
	case CoverArtDownloaded:
		return 3
	case CoverArtGenerated:
		return 4
	default:
		return 99
	}
}

const maxCoverArtBytes = 500 * 1024 * 1024 // 500 MiB

type CoverArtEventKind int

const (
	CoverArtEventCreated CoverArtEventKind = iota
)

type CoverArtEvent struct {
	Kind    CoverArtEventKind
	ArtID   int64
	Vers    int64
}

func (e CoverArtEvent) AggregateID() int64 { return e.ArtID }
func (e CoverArtEvent) Version() int64     { return e.Vers }

type CoverArt struct {
	ID            int64
	Source        CoverArtSource
	Width         *int
	Height        *int
	FileSize      int64
	Format        string
	Path          MediaPath
	AudioFileID   *int64
	Version       int64
	PendingEvents []CoverArtEvent
}

// NewCoverArt validates size (rejects zero or >500 MiB).
func NewCoverArt(id int64, source CoverArtSource, fileSize int64, format string, path MediaPath) (*CoverArt, error) {
	if fileSize <= 0 {
		return nil, apperr.InvalidInput("cover art file size must be positive")
	}
	if fileSize > maxCoverArtBytes {
		return nil, apperr.InvalidInput("cover art exceeds 500 MiB")
	}
	c := &CoverArt{ID: id, Source: source, FileSize: fileSize, Format: format, Path: path}
	c.Version++
	c.PendingEvents = append(c.PendingEvents, CoverArtEvent{Kind: CoverArtEventCreated, ArtID: id, Vers: c.Version})
	return c, nil
}

func (c *CoverArt) TakeEvents() []CoverArtEvent {
	e := c.PendingEvents
	c.PendingEvents = nil
	return e
}

type CoverArtRepository interface {
	Save(c *CoverArt) error
	FindByID(id int64) (*CoverArt, error)
	FindByAudioFileID(audioFileID int64) ([]*CoverArt, error)
}

func (c *CoverArt) GetKey() int64 { return c.ID }

func (c *CoverArt) SecondaryIndexes() []memtable.IndexDescriptor {
	if c.AudioFileID == nil {
		return nil
	}
	return []memtable.IndexDescriptor{{Name: "audio_file", Value: strconv.FormatInt(*c.AudioFileID, 10), Kind: memtable.IndexPrefix}}
}
