package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"melodia/internal/apperr"
	"melodia/internal/database"
	"melodia/internal/domain"
	"melodia/internal/memtable"
)

type AudioFileStore struct {
	db *database.DB
}

func NewAudioFileStore(db *database.DB) *AudioFileStore { return &AudioFileStore{db: db} }

func (s *AudioFileStore) scanRow(row pgx.Row) (*domain.AudioFile, bool, error) {
	a := &domain.AudioFile{}
	var participantsJSON []byte
	var pathProtocol, pathPath string
	if err := row.Scan(
		&a.ID, &a.LibraryItemID, &pathProtocol, &pathPath, &a.Suffix, &a.Size,
		&a.Technical.DurationSeconds, &a.Technical.BitRateKbps, &a.Technical.SampleRateHz,
		&a.Technical.Channels, &a.Technical.BitDepth, &a.Title, &a.AlbumID, &a.ArtistID,
		&a.GenreID, &a.GenreIDs, &participantsJSON, &a.HasCoverArt, &a.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load audio file", err)
	}
	a.Path = domain.MediaPath{Protocol: pathProtocol, Path: pathPath}
	if len(participantsJSON) > 0 {
		if err := json.Unmarshal(participantsJSON, &a.Participants); err != nil {
			return nil, false, apperr.TransientBackend("decode audio file participants", err)
		}
	}
	return a, true, nil
}

func (s *AudioFileStore) Load(ctx context.Context, id int64) (*domain.AudioFile, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, library_item_id, path_protocol, path, suffix, size,
		       duration_seconds, bit_rate_kbps, sample_rate_hz, channels, bit_depth,
		       title, album_id, artist_id, genre_id, genre_ids, participants, has_cover_art, version
		FROM audio_files WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *AudioFileStore) LoadByPath(ctx context.Context, path domain.MediaPath) (*domain.AudioFile, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, library_item_id, path_protocol, path, suffix, size,
		       duration_seconds, bit_rate_kbps, sample_rate_hz, channels, bit_depth,
		       title, album_id, artist_id, genre_id, genre_ids, participants, has_cover_art, version
		FROM audio_files WHERE path_protocol = $1 AND path = $2`, path.Protocol, path.Path)
	return s.scanRow(row)
}

func (s *AudioFileStore) Persist(ctx context.Context, id int64, a *domain.AudioFile) error {
	participantsJSON, err := json.Marshal(a.Participants)
	if err != nil {
		return apperr.InvalidInput("encode audio file participants: " + err.Error())
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO audio_files (
			id, library_item_id, path_protocol, path, suffix, size,
			duration_seconds, bit_rate_kbps, sample_rate_hz, channels, bit_depth,
			title, album_id, artist_id, genre_id, genre_ids, participants, has_cover_art, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
			library_item_id = $2, path_protocol = $3, path = $4, suffix = $5, size = $6,
			duration_seconds = $7, bit_rate_kbps = $8, sample_rate_hz = $9, channels = $10, bit_depth = $11,
			title = $12, album_id = $13, artist_id = $14, genre_id = $15, genre_ids = $16,
			participants = $17, has_cover_art = $18, version = $19
		WHERE audio_files.version < $19`,
		id, a.LibraryItemID, a.Path.Protocol, a.Path.Path, a.Suffix, a.Size,
		a.Technical.DurationSeconds, a.Technical.BitRateKbps, a.Technical.SampleRateHz,
		a.Technical.Channels, a.Technical.BitDepth, a.Title, a.AlbumID, a.ArtistID,
		a.GenreID, a.GenreIDs, participantsJSON, a.HasCoverArt, a.Version,
	)
	if err != nil {
		return apperr.TransientBackend("persist audio file", err)
	}
	return nil
}

func (s *AudioFileStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM audio_files WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove audio file", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.AudioFile] = (*AudioFileStore)(nil)
var _ Store[int64, *domain.AudioFile] = (*AudioFileStore)(nil)

type AudioFileRepo struct {
	buf   *Buffered[int64, *domain.AudioFile]
	store *AudioFileStore
}

func NewAudioFileRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *AudioFileRepo {
	store := NewAudioFileStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.AudioFile](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.AudioFile](sizeThreshold, flushTimeout, persister, log)
	return &AudioFileRepo{buf: NewBuffered[int64, *domain.AudioFile](mem, cacheCapacity, store), store: store}
}

func (r *AudioFileRepo) Save(a *domain.AudioFile) error {
	r.buf.Save(context.Background(), a)
	return nil
}

func (r *AudioFileRepo) FindByID(id int64) (*domain.AudioFile, error) {
	a, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("audio_file", formatID(id))
	}
	return a, nil
}

func (r *AudioFileRepo) FindByPath(path domain.MediaPath) (*domain.AudioFile, error) {
	if a, ok := r.buf.GetByIndex("path", path.String()); ok {
		return a, nil
	}
	a, ok, err := r.store.LoadByPath(context.Background(), path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("audio_file", path.String())
	}
	return a, nil
}
