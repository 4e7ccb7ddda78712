package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"melodia/internal/appevents"
	"melodia/internal/domain"
	"melodia/internal/eventbus"
)

// AudioFileBinder is the target aggregate service BindToAudioFile invokes once.
type AudioFileBinder interface {
	Bind(ctx context.Context, corrID eventbus.CorrelationID, cmd domain.BindCmd) error
}

// BindToAudioFileCoordinator mirrors BindToAlbumCoordinator but binds genres
// and participants directly onto an AudioFile rather than an Album; it runs
// for every parsed file, alongside BindToAlbum. Lock order is audio_file, artist,
// genre, audio_artists, audio_genres.
type BindToAudioFileCoordinator struct {
	binder AudioFileBinder
	log    *slog.Logger

	audioFileMu sync.Mutex
	audioFile   map[eventbus.CorrelationID]int64

	artistMu sync.Mutex
	artists  map[eventbus.CorrelationID][]int64

	genreMu sync.Mutex
	genres  map[eventbus.CorrelationID][]int64

	audioArtistsMu sync.Mutex
	audioArtists   map[eventbus.CorrelationID][]domain.ParticipantMeta

	audioGenresMu sync.Mutex
	audioGenres   map[eventbus.CorrelationID][]string
}

func NewBindToAudioFileCoordinator(binder AudioFileBinder, log *slog.Logger) *BindToAudioFileCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &BindToAudioFileCoordinator{
		binder:       binder,
		log:          log,
		audioFile:    make(map[eventbus.CorrelationID]int64),
		artists:      make(map[eventbus.CorrelationID][]int64),
		genres:       make(map[eventbus.CorrelationID][]int64),
		audioArtists: make(map[eventbus.CorrelationID][]domain.ParticipantMeta),
		audioGenres:  make(map[eventbus.CorrelationID][]string),
	}
}

func (c *BindToAudioFileCoordinator) Register(bus *eventbus.Bus) {
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[appevents.AudioFileParsed]) {
		c.onAudioFileID(ctx, env.CorrelationID, env.Payload)
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
}

func (c *BindToAudioFileCoordinator) onAudioFileID(ctx context.Context, corr eventbus.CorrelationID, evt appevents.AudioFileParsed) {
	c.audioFileMu.Lock()
	c.audioFile[corr] = evt.AudioFileID
	c.audioFileMu.Unlock()

	c.audioArtistsMu.Lock()
	c.audioArtists[corr] = evt.Participants
	c.audioArtistsMu.Unlock()

	c.audioGenresMu.Lock()
	c.audioGenres[corr] = evt.Genres
	c.audioGenresMu.Unlock()

	c.checkAndBind(ctx, corr)
}

func (c *BindToAudioFileCoordinator) onArtistAvailable(ctx context.Context, corr eventbus.CorrelationID, artistID int64) {
	c.artistMu.Lock()
	c.artists[corr] = append(c.artists[corr], artistID)
	c.artistMu.Unlock()
	c.checkAndBind(ctx, corr)
}

func (c *BindToAudioFileCoordinator) onGenreAvailable(ctx context.Context, corr eventbus.CorrelationID, genreID int64) {
	c.genreMu.Lock()
	c.genres[corr] = append(c.genres[corr], genreID)
	c.genreMu.Unlock()
	c.checkAndBind(ctx, corr)
}

func (c *BindToAudioFileCoordinator) checkAndBind(ctx context.Context, corr eventbus.CorrelationID) {
	c.audioFileMu.Lock()
	audioFileID, haveAudioFile := c.audioFile[corr]
	c.audioFileMu.Unlock()
	if !haveAudioFile {
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

	c.cleanup(corr)
	c.executeBind(ctx, corr, audioFileID, genres, artists, expectedArtists)
}

func (c *BindToAudioFileCoordinator) cleanup(corr eventbus.CorrelationID) {
	c.audioFileMu.Lock()
	delete(c.audioFile, corr)
	c.audioFileMu.Unlock()

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
}

func (c *BindToAudioFileCoordinator) executeBind(ctx context.Context, corr eventbus.CorrelationID, audioFileID int64, genreIDs, artists []int64, expectedArtists []domain.ParticipantMeta) {
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
	cmd := domain.BindCmd{AudioFileID: &id, GenreIDs: genreIDs, Artists: bindings}
	if err := c.binder.Bind(ctx, corr, cmd); err != nil {
		c.log.Error("failed to bind genres and artists to audio file", "error", err, "audio_file_id", audioFileID)
	}
}
