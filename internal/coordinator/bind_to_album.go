// Package coordinator implements the rendezvous-gate pattern from
// spec.md §4.6: each coordinator waits for N independent asynchronous
// prerequisite events sharing one correlation id, then issues a single
// batched Bind command. State lives in plain in-memory maps keyed by
// CorrelationID, guarded by per-slot mutexes acquired in a fixed order to
// avoid deadlock — never inheritance, never a framework saga.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"melodia/internal/appevents"
	"melodia/internal/domain"
	"melodia/internal/eventbus"
)

// AlbumBinder is the target aggregate service BindToAlbum invokes once.
type AlbumBinder interface {
	Bind(ctx context.Context, corrID eventbus.CorrelationID, cmd domain.BindCmd) error
}

// BindToAlbumCoordinator correlates Album/Artist/Genre/AudioFileParsed
// events by correlation id and performs one batched album binding.
type BindToAlbumCoordinator struct {
	binder AlbumBinder
	log    *slog.Logger

	albumMu sync.Mutex
	album   map[eventbus.CorrelationID]int64

	artistMu sync.Mutex
	artists  map[eventbus.CorrelationID][]int64

	genreMu sync.Mutex
	genres  map[eventbus.CorrelationID][]int64

	audioArtistsMu sync.Mutex
	audioArtists   map[eventbus.CorrelationID][]domain.ParticipantMeta

	audioGenresMu sync.Mutex
	audioGenres   map[eventbus.CorrelationID][]string

	audioFileMu sync.Mutex
	audioFile   map[eventbus.CorrelationID]int64
}

func NewBindToAlbumCoordinator(binder AlbumBinder, log *slog.Logger) *BindToAlbumCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &BindToAlbumCoordinator{
		binder:       binder,
		log:          log,
		album:        make(map[eventbus.CorrelationID]int64),
		artists:      make(map[eventbus.CorrelationID][]int64),
		genres:       make(map[eventbus.CorrelationID][]int64),
		audioArtists: make(map[eventbus.CorrelationID][]domain.ParticipantMeta),
		audioGenres:  make(map[eventbus.CorrelationID][]string),
		audioFile:    make(map[eventbus.CorrelationID]int64),
	}
}

// Register wires this coordinator's handlers onto the bus.
func (c *BindToAlbumCoordinator) Register(bus *eventbus.Bus) {
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.AlbumEvent]) {
		if env.Payload.Kind == domain.AlbumEventCreated || env.Payload.Kind == domain.AlbumEventFound {
			c.onAlbumAvailable(ctx, env.CorrelationID, env.Payload.AlbumID)
		}
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.ArtistEvent]) {
		if env.Payload.Kind == domain.ArtistEventCreated || env.Payload.Kind == domain.ArtistEventFound {
			c.onArtistAvailable(ctx, env.CorrelationID, env.Payload.ArtistID)
		}
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.GenreEvent]) {
		if env.Payload.Kind == domain.GenreEventCreated || env.Payload.Kind == domain.GenreEventFound {
			c.onGenreAvailable(ctx, env.CorrelationID, env.Payload.GenreID)
		}
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[appevents.AudioFileParsed]) {
		c.onAudioFileParsed(ctx, env.CorrelationID, env.Payload)
	})
}

func (c *BindToAlbumCoordinator) onAlbumAvailable(ctx context.Context, corr eventbus.CorrelationID, albumID int64) {
	c.albumMu.Lock()
	c.album[corr] = albumID
	c.albumMu.Unlock()
	c.checkAndBind(ctx, corr)
}

func (c *BindToAlbumCoordinator) onArtistAvailable(ctx context.Context, corr eventbus.CorrelationID, artistID int64) {
	c.artistMu.Lock()
	c.artists[corr] = append(c.artists[corr], artistID)
	c.artistMu.Unlock()
	c.checkAndBind(ctx, corr)
}

func (c *BindToAlbumCoordinator) onGenreAvailable(ctx context.Context, corr eventbus.CorrelationID, genreID int64) {
	c.genreMu.Lock()
	c.genres[corr] = append(c.genres[corr], genreID)
	c.genreMu.Unlock()
	c.checkAndBind(ctx, corr)
}

func (c *BindToAlbumCoordinator) onAudioFileParsed(ctx context.Context, corr eventbus.CorrelationID, evt appevents.AudioFileParsed) {
	c.audioArtistsMu.Lock()
	c.audioArtists[corr] = evt.Participants
	c.audioArtistsMu.Unlock()

	c.audioGenresMu.Lock()
	c.audioGenres[corr] = evt.Genres
	c.audioGenresMu.Unlock()

	c.audioFileMu.Lock()
	c.audioFile[corr] = evt.AudioFileID
	c.audioFileMu.Unlock()

	c.checkAndBind(ctx, corr)
}

// checkAndBind is invoked after every slot write. Lock acquisition order is
// fixed — album, artist, genre, audio_artists, audio_genres — in both the
// read here and cleanup, to eliminate deadlock against concurrent writers.
func (c *BindToAlbumCoordinator) checkAndBind(ctx context.Context, corr eventbus.CorrelationID) {
	c.albumMu.Lock()
	albumID, haveAlbum := c.album[corr]
	c.albumMu.Unlock()
	if !haveAlbum {
		return
	}

	c.artistMu.Lock()
	artists := append([]int64(nil), c.artists[corr]...)
	c.artistMu.Unlock()

	c.genreMu.Lock()
	genres := append([]int64(nil), c.genres[corr]...)
	c.genreMu.Unlock()

	c.audioArtistsMu.Lock()
	expectedArtists, haveExpectedArtists := c.audioArtists[corr]
	c.audioArtistsMu.Unlock()

	c.audioGenresMu.Lock()
	expectedGenres, haveExpectedGenres := c.audioGenres[corr]
	c.audioGenresMu.Unlock()

	if !haveExpectedArtists || !haveExpectedGenres {
		return
	}
	if len(artists) != len(expectedArtists) || len(genres) != len(expectedGenres) {
		return
	}

	c.audioFileMu.Lock()
	audioFileID, haveAudioFile := c.audioFile[corr]
	c.audioFileMu.Unlock()
	if !haveAudioFile {
		return
	}

	c.cleanup(corr)
	c.executeBind(ctx, corr, albumID, audioFileID, genres, artists, expectedArtists)
}

func (c *BindToAlbumCoordinator) cleanup(corr eventbus.CorrelationID) {
	c.albumMu.Lock()
	delete(c.album, corr)
	c.albumMu.Unlock()

	c.artistMu.Lock()
	delete(c.artists, corr)
	c.artistMu.Unlock()

	c.genreMu.Lock()
	delete(c.genres, corr)
	c.genreMu.Unlock()

	c.audioArtistsMu.Lock()
	delete(c.audioArtists, corr)
	c.audioArtistsMu.Unlock()

	c.audioGenresMu.Lock()
	delete(c.audioGenres, corr)
	c.audioGenresMu.Unlock()

	c.audioFileMu.Lock()
	delete(c.audioFile, corr)
	c.audioFileMu.Unlock()
}

// executeBind zips artists with expectedArtists by position — the artist
// handler iterates expected_artists in order and awaits each publish, so
// Created/Found events arrive in that same order. If that handler were
// parallelized, an explicit index would need to travel in the event payload
// and replace this positional match.
func (c *BindToAlbumCoordinator) executeBind(ctx context.Context, corr eventbus.CorrelationID, albumID, audioFileID int64, genreIDs, artists []int64, expectedArtists []domain.ParticipantMeta) {
	bindings := make([]domain.ArtistBinding, 0, len(artists))
	for i, artistID := range artists {
		role := domain.RoleArtist
		var subRole *domain.ParticipantSubRole
		if i < len(expectedArtists) {
			role = expectedArtists[i].Role
			subRole = expectedArtists[i].SubRole
		}
		bindings = append(bindings, domain.ArtistBinding{ArtistID: artistID, Role: role, SubRole: subRole})
	}

	id := audioFileID
	cmd := domain.BindCmd{AlbumID: albumID, AudioFileID: &id, GenreIDs: genreIDs, Artists: bindings}
	if err := c.binder.Bind(ctx, corr, cmd); err != nil {
		c.log.Error("failed to bind genres and artists to album", "error", err, "album_id", albumID)
	}
}
