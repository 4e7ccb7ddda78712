package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"melodia/internal/apperr"
	"melodia/internal/database"
	"melodia/internal/domain"
	"melodia/internal/memtable"
)

// CoverArtStore is the pgx-backed persister and read port for the CoverArt
// buffered repository.
type CoverArtStore struct {
	db *database.DB
}

func NewCoverArtStore(db *database.DB) *CoverArtStore {
	return &CoverArtStore{db: db}
}

func (s *CoverArtStore) scanRow(row pgx.Row) (*domain.CoverArt, bool, error) {
	c := &domain.CoverArt{}
	var pathProtocol, pathPath string
	var source int
	if err := row.Scan(&c.ID, &source, &c.Width, &c.Height, &c.FileSize, &c.Format, &pathProtocol, &pathPath, &c.AudioFileID, &c.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load cover art", err)
	}
	c.Source = domain.CoverArtSource(source)
	c.Path = domain.MediaPath{Protocol: pathProtocol, Path: pathPath}
	return c, true, nil
}

func (s *CoverArtStore) Load(ctx context.Context, id int64) (*domain.CoverArt, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source, width, height, file_size, format, path_protocol, path, audio_file_id, version
		FROM cover_art WHERE id = $1`, id)
	return s.scanRow(row)
}

// LoadAllByAudioFileID returns every cover art bound to an audio file,
// ordered by source priority (lowest first) so callers can take the first
// as the winning candidate. Queried directly against the store rather than
// through the memtable: this is a one-to-many lookup and the memtable's
// secondary index is single-valued per key.
func (s *CoverArtStore) LoadAllByAudioFileID(ctx context.Context, audioFileID int64) ([]*domain.CoverArt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source, width, height, file_size, format, path_protocol, path, audio_file_id, version
		FROM cover_art WHERE audio_file_id = $1`, audioFileID)
	if err != nil {
		return nil, apperr.TransientBackend("load cover art by audio file", err)
	}
	defer rows.Close()

	var out []*domain.CoverArt
	for rows.Next() {
		c, ok, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.TransientBackend("load cover art by audio file", err)
	}
	return out, nil
}

func (s *CoverArtStore) Persist(ctx context.Context, id int64, c *domain.CoverArt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO cover_art (id, source, width, height, file_size, format, path_protocol, path, audio_file_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			source = $2, width = $3, height = $4, file_size = $5, format = $6,
			path_protocol = $7, path = $8, audio_file_id = $9, version = $10
		WHERE cover_art.version < $10`,
		id, int(c.Source), c.Width, c.Height, c.FileSize, c.Format, c.Path.Protocol, c.Path.Path, c.AudioFileID, c.Version)
	if err != nil {
		return apperr.TransientBackend("persist cover art", err)
	}
	return nil
}

func (s *CoverArtStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cover_art WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove cover art", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.CoverArt] = (*CoverArtStore)(nil)
var _ Store[int64, *domain.CoverArt] = (*CoverArtStore)(nil)

type CoverArtRepo struct {
	buf   *Buffered[int64, *domain.CoverArt]
	store *CoverArtStore
}

func NewCoverArtRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *CoverArtRepo {
	store := NewCoverArtStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.CoverArt](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.CoverArt](sizeThreshold, flushTimeout, persister, log)
	return &CoverArtRepo{
		buf:   NewBuffered[int64, *domain.CoverArt](mem, cacheCapacity, store),
		store: store,
	}
}

func (r *CoverArtRepo) Save(c *domain.CoverArt) error {
	r.buf.Save(context.Background(), c)
	return nil
}

func (r *CoverArtRepo) FindByID(id int64) (*domain.CoverArt, error) {
	c, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("cover_art", formatID(id))
	}
	return c, nil
}

func (r *CoverArtRepo) FindByAudioFileID(audioFileID int64) ([]*domain.CoverArt, error) {
	return r.store.LoadAllByAudioFileID(context.Background(), audioFileID)
}

var _ domain.CoverArtRepository = (*CoverArtRepo)(nil)
