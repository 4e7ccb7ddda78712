// Package ensure implements the idempotent ensure-or-create handlers that
// sit behind every natural-key aggregate: look up by natural key, and only
// construct + mint an id when nothing is found. The artist, genre and album
// handlers publish the aggregate's pending events on the shared bus after
// saving, inheriting the correlation id of whatever upstream event triggered
// it; AudioFileHandler.EnsureAudioFile publishes no event.
package ensure

import (
	"context"
	"log/slog"

	"melodia/internal/appevents"
	"melodia/internal/domain"
	"melodia/internal/eventbus"
	"melodia/internal/snowflake"
)

// ArtistHandler ensures one Artist per normalized sort name exists, in
// response to AudioFileParsed participant data.
type ArtistHandler struct {
	repo      domain.ArtistRepository
	ids       *snowflake.Generator
	bus       *eventbus.Bus
	log       *slog.Logger
	ignoreArt []string
}

func NewArtistHandler(repo domain.ArtistRepository, ids *snowflake.Generator, bus *eventbus.Bus, log *slog.Logger, ignoredArticles []string) *ArtistHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ArtistHandler{repo: repo, ids: ids, bus: bus, log: log, ignoreArt: ignoredArticles}
}

// EnsureArtist looks up an artist by normalized name, creating one if
// absent, and publishes the resulting Created/Found event under parentEnv's
// correlation id.
func (h *ArtistHandler) EnsureArtist(ctx context.Context, parentEnv any, name string) (*domain.Artist, error) {
	sortName := domain.NormalizeSortName(name, h.ignoreArt)

	existing, err := h.repo.FindBySortName(sortName)
	if err == nil && existing != nil {
		existing.MarkFound()
		if err := h.repo.Save(existing); err != nil {
			return nil, err
		}
		h.publish(ctx, parentEnv, existing)
		return existing, nil
	}

	artist := domain.NewArtist(h.ids.Next(), name, sortName)
	artist.MarkCreated()
	if err := h.repo.Save(artist); err != nil {
		return nil, err
	}
	h.publish(ctx, parentEnv, artist)
	return artist, nil
}

func (h *ArtistHandler) publish(ctx context.Context, parentEnv any, a *domain.Artist) {
	for _, evt := range a.TakeEvents() {
		env := eventbus.Inherit(parentEnv, evt, a.ID, evt.Version())
		eventbus.Publish(ctx, h.bus, env)
	}
}

// GenreHandler ensures one Genre per canonical (lower-cased) name exists.
type GenreHandler struct {
	repo domain.GenreRepository
	ids  *snowflake.Generator
	bus  *eventbus.Bus
	log  *slog.Logger
}

func NewGenreHandler(repo domain.GenreRepository, ids *snowflake.Generator, bus *eventbus.Bus, log *slog.Logger) *GenreHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GenreHandler{repo: repo, ids: ids, bus: bus, log: log}
}

func (h *GenreHandler) EnsureGenre(ctx context.Context, parentEnv any, name string) (*domain.Genre, error) {
	canonical := canonicalGenreName(name)

	existing, err := h.repo.FindByCanonicalName(canonical)
	if err == nil && existing != nil {
		existing.MarkFound()
		if err := h.repo.Save(existing); err != nil {
			return nil, err
		}
		h.publish(ctx, parentEnv, existing)
		return existing, nil
	}

	genre := domain.NewGenre(h.ids.Next(), name, canonical)
	genre.MarkCreated()
	if err := h.repo.Save(genre); err != nil {
		return nil, err
	}
	h.publish(ctx, parentEnv, genre)
	return genre, nil
}

func (h *GenreHandler) publish(ctx context.Context, parentEnv any, g *domain.Genre) {
	for _, evt := range g.TakeEvents() {
		env := eventbus.Inherit(parentEnv, evt, g.ID, evt.Version())
		eventbus.Publish(ctx, h.bus, env)
	}
}

func canonicalGenreName(name string) string {
	return domain.NormalizeSortName(name, nil)
}

// AlbumHandler ensures one Album per normalized sort name exists. The
// album's artists play no part in the lookup, so albums sharing a title
// share one aggregate.
type AlbumHandler struct {
	repo       domain.AlbumRepository
	audioFiles domain.AudioFileRepository
	ids        *snowflake.Generator
	bus        *eventbus.Bus
	log        *slog.Logger
	ignoreArt  []string
}

func NewAlbumHandler(repo domain.AlbumRepository, audioFiles domain.AudioFileRepository, ids *snowflake.Generator, bus *eventbus.Bus, log *slog.Logger, ignoredArticles []string) *AlbumHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AlbumHandler{repo: repo, audioFiles: audioFiles, ids: ids, bus: bus, log: log, ignoreArt: ignoredArticles}
}

func (h *AlbumHandler) EnsureAlbum(ctx context.Context, parentEnv any, name string) (*domain.Album, error) {
	sortName := domain.NormalizeSortName(name, h.ignoreArt)

	existing, err := h.repo.FindBySortName(sortName)
	if err == nil && existing != nil {
		existing.MarkFound()
		if err := h.repo.Save(existing); err != nil {
			return nil, err
		}
		h.publish(ctx, parentEnv, existing)
		return existing, nil
	}

	album := domain.NewAlbum(h.ids.Next(), name, sortName)
	album.MarkCreated()
	if err := h.repo.Save(album); err != nil {
		return nil, err
	}
	h.publish(ctx, parentEnv, album)
	return album, nil
}

// Bind satisfies coordinator.AlbumBinder: load, mutate, save, publish — then,
// if cmd carries the source audio file's id, bind that file to the album too
// so album_stats has something to project off of.
func (h *AlbumHandler) Bind(ctx context.Context, corrID eventbus.CorrelationID, cmd domain.BindCmd) error {
	album, err := h.repo.FindByID(cmd.AlbumID)
	if err != nil {
		return err
	}
	album.Bind(cmd)
	if err := h.repo.Save(album); err != nil {
		return err
	}
	for _, evt := range album.TakeEvents() {
		env := eventbus.Envelope[domain.AlbumEvent]{
			Payload: evt, AggregateID: album.ID, Version: evt.Version(), CorrelationID: corrID,
		}
		eventbus.Publish(ctx, h.bus, env)
	}

	if cmd.AudioFileID == nil {
		return nil
	}
	af, err := h.audioFiles.FindByID(*cmd.AudioFileID)
	if err != nil {
		return err
	}
	if af.AlbumID == nil {
		if err := af.BindToAlbum(album.ID); err != nil {
			return err
		}
		if err := h.audioFiles.Save(af); err != nil {
			return err
		}
		for _, evt := range af.TakeEvents() {
			env := eventbus.Envelope[domain.AudioFileEvent]{
				Payload: evt, AggregateID: af.ID, Version: evt.Version(), CorrelationID: corrID,
			}
			eventbus.Publish(ctx, h.bus, env)
		}
	}
	return nil
}

func (h *AlbumHandler) publish(ctx context.Context, parentEnv any, a *domain.Album) {
	for _, evt := range a.TakeEvents() {
		env := eventbus.Inherit(parentEnv, evt, a.ID, evt.Version())
		eventbus.Publish(ctx, h.bus, env)
	}
}

// AudioFileHandler ensures one AudioFile per media path exists and, as the
// BindToAudioFile coordinator's binder, binds genres/participants directly
// onto it; that binding runs for every parsed file, alongside the album
// binding.
type AudioFileHandler struct {
	repo domain.AudioFileRepository
	ids  *snowflake.Generator
	bus  *eventbus.Bus
	log  *slog.Logger
}

func NewAudioFileHandler(repo domain.AudioFileRepository, ids *snowflake.Generator, bus *eventbus.Bus, log *slog.Logger) *AudioFileHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AudioFileHandler{repo: repo, ids: ids, bus: bus, log: log}
}

// EnsureAudioFile looks up by path and, if absent, constructs and saves a
// new AudioFile. It records and publishes no event; the caller (the scan
// pipeline) passes the returned id to the metadata parser and on to the
// coordinators through AudioFileParsed.
func (h *AudioFileHandler) EnsureAudioFile(ctx context.Context, parentEnv any, item domain.FileMeta, technical domain.TechnicalInfo, title string) (*domain.AudioFile, error) {
	existing, err := h.repo.FindByPath(item.Path)
	if err == nil && existing != nil {
		return existing, nil
	}

	af := domain.NewAudioFile(h.ids.Next(), item, technical, title)
	if err := h.repo.Save(af); err != nil {
		return nil, err
	}
	return af, nil
}

func (h *AudioFileHandler) Bind(ctx context.Context, corrID eventbus.CorrelationID, cmd domain.BindCmd) error {
	if cmd.AudioFileID == nil {
		return nil
	}
	af, err := h.repo.FindByID(*cmd.AudioFileID)
	if err != nil {
		return err
	}
	for _, genreID := range cmd.GenreIDs {
		af.BindToGenre(genreID)
	}
	for _, ab := range cmd.Artists {
		af.AddParticipant(domain.Participant{
			ArtistID: ab.ArtistID, Role: ab.Role, SubRole: ab.SubRole,
			WorkID: af.ID, WorkType: domain.WorkTypeAudioFile,
		})
	}
	if err := h.repo.Save(af); err != nil {
		return err
	}
	for _, evt := range af.TakeEvents() {
		env := eventbus.Envelope[domain.AudioFileEvent]{
			Payload: evt, AggregateID: af.ID, Version: evt.Version(), CorrelationID: corrID,
		}
		eventbus.Publish(ctx, h.bus, env)
	}
	return nil
}

// PublishAudioFileParsed wraps evt in a fresh top-level envelope — this is
// the command entry point that seeds both coordinators' rendezvous state.
func PublishAudioFileParsed(ctx context.Context, bus *eventbus.Bus, evt appevents.AudioFileParsed) eventbus.CorrelationID {
	corr := eventbus.NewCorrelationID()
	env := eventbus.Envelope[appevents.AudioFileParsed]{
		Payload: evt, AggregateID: evt.AudioFileID, CorrelationID: corr,
	}
	eventbus.Publish(ctx, bus, env)
	return corr
}
