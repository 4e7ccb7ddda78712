// Package projector denormalizes domain events into the read-model tables
// spec.md §4.7 describes: album/participant/genre stats, album/artist
// location roll-ups, and playback history. Every adjustment is applied as a
// delta rather than an absolute value, so a retried or out-of-order event
// still converges to the right total instead of clobbering it.
package projector

import (
	"context"
	"log/slog"
	"time"

	"melodia/internal/database"
	"melodia/internal/domain"
	"melodia/internal/eventbus"
	"melodia/internal/snowflake"
)

// Projector owns the read-model stores and subscribes them to the event
// types that move the numbers they track.
type Projector struct {
	stats      *statsRepo
	locations  *locationsStore
	audioFiles domain.AudioFileRepository
	rootPath   string
	log        *slog.Logger
}

func New(db *database.DB, audioFiles domain.AudioFileRepository, ids *snowflake.Generator, rootPath string, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *Projector {
	if log == nil {
		log = slog.Default()
	}
	return &Projector{
		stats:      newStatsRepo(db, sizeThreshold, cacheCapacity, flushTimeout, persistConcurrency, log),
		locations:  newLocationsStore(db, ids),
		audioFiles: audioFiles,
		rootPath:   rootPath,
		log:        log,
	}
}

// Register wires every handler onto bus. Handler order relative to other
// subscribers of the same event type doesn't matter here: projection is
// read-only with respect to the aggregates themselves.
func (p *Projector) Register(bus *eventbus.Bus) {
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.AudioFileEvent]) {
		p.onAudioFileEvent(ctx, env)
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.LibraryEvent]) {
		p.onLibraryEvent(ctx, env)
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.AnnotationEvent]) {
		p.onAnnotationEvent(ctx, env)
	})
}

func (p *Projector) onAudioFileEvent(ctx context.Context, env eventbus.Envelope[domain.AudioFileEvent]) {
	evt := env.Payload
	switch evt.Kind {
	case domain.AudioFileEventBoundToAlbum:
		albumID, ok := evt.Payload.(int64)
		if !ok {
			return
		}
		af, err := p.audioFiles.FindByID(evt.AudioFile)
		if err != nil {
			p.log.Error("projector: load audio file for album bind", "error", err, "audio_file_id", evt.AudioFile)
			return
		}
		p.stats.applyAlbumDelta(ctx, albumID, 1, int64(af.Technical.DurationSeconds), af.Size)
		if err := p.locations.adjustAlbumLocation(ctx, albumID, p.rootPath, 1); err != nil {
			p.log.Error("projector: adjust album location", "error", err, "album_id", albumID)
		}

	case domain.AudioFileEventParticipantAdded:
		participant, ok := evt.Payload.(domain.Participant)
		if !ok {
			return
		}
		af, err := p.audioFiles.FindByID(evt.AudioFile)
		if err != nil {
			p.log.Error("projector: load audio file for participant add", "error", err, "audio_file_id", evt.AudioFile)
			return
		}
		p.stats.applyParticipantDelta(ctx, participant.ArtistID, int(participant.Role), 1, int64(af.Technical.DurationSeconds))
		if err := p.locations.adjustArtistLocation(ctx, participant.ArtistID, p.rootPath, 1); err != nil {
			p.log.Error("projector: adjust artist location", "error", err, "artist_id", participant.ArtistID)
		}

	case domain.AudioFileEventGenreAdded:
		genreID, ok := evt.Payload.(int64)
		if !ok {
			return
		}
		af, err := p.audioFiles.FindByID(evt.AudioFile)
		if err != nil {
			p.log.Error("projector: load audio file for genre add", "error", err, "audio_file_id", evt.AudioFile)
			return
		}
		p.stats.applyGenreDelta(ctx, genreID, 1, int64(af.Technical.DurationSeconds))
	}
}

// onLibraryEvent handles the removal-decrement path: when a file disappears
// from the library, the audio file aggregate it corresponds to is still
// present (AudioFile.Delete requires no bindings, and a bound file always
// has at least one), so its stored bindings are the source of truth for
// what to subtract.
func (p *Projector) onLibraryEvent(ctx context.Context, env eventbus.Envelope[domain.LibraryEvent]) {
	evt := env.Payload
	if evt.Kind != domain.LibraryEventFileRemoved || evt.Path == nil {
		return
	}

	af, err := p.audioFiles.FindByPath(*evt.Path)
	if err != nil {
		return
	}

	duration := int64(af.Technical.DurationSeconds)
	if af.AlbumID != nil {
		p.stats.applyAlbumDelta(ctx, *af.AlbumID, -1, -duration, -af.Size)
		if err := p.locations.adjustAlbumLocation(ctx, *af.AlbumID, p.rootPath, -1); err != nil {
			p.log.Error("projector: adjust album location on removal", "error", err, "album_id", *af.AlbumID)
		}
	}
	for _, participant := range af.Participants {
		p.stats.applyParticipantDelta(ctx, participant.ArtistID, int(participant.Role), -1, -duration)
		if err := p.locations.adjustArtistLocation(ctx, participant.ArtistID, p.rootPath, -1); err != nil {
			p.log.Error("projector: adjust artist location on removal", "error", err, "artist_id", participant.ArtistID)
		}
	}
	for _, genreID := range af.GenreIDs {
		p.stats.applyGenreDelta(ctx, genreID, -1, -duration)
	}
}

func (p *Projector) onAnnotationEvent(ctx context.Context, env eventbus.Envelope[domain.AnnotationEvent]) {
	evt := env.Payload
	if evt.Kind != domain.AnnotationEventScrobbled || evt.ItemKind != domain.AnnotatedAudioFile {
		return
	}
	submission, _ := evt.Payload.(bool)
	if !submission {
		return
	}
	if err := p.locations.recordPlayback(ctx, evt.UserID, evt.ItemID, submission, time.Now().UTC()); err != nil {
		p.log.Error("projector: record playback", "error", err, "user_id", evt.UserID, "audio_file_id", evt.ItemID)
	}
}
