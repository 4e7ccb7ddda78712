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

type AlbumStore struct {
	db *database.DB
}

func NewAlbumStore(db *database.DB) *AlbumStore { return &AlbumStore{db: db} }

func (s *AlbumStore) scanRow(row pgx.Row) (*domain.Album, bool, error) {
	a := &domain.Album{}
	if err := row.Scan(&a.ID, &a.Name, &a.SortName, &a.Year, &a.ArtistIDs, &a.GenreIDs, &a.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load album", err)
	}
	return a, true, nil
}

func (s *AlbumStore) Load(ctx context.Context, id int64) (*domain.Album, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, sort_name, year, artist_ids, genre_ids, version FROM albums WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *AlbumStore) LoadBySortName(ctx context.Context, sortName string) (*domain.Album, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, sort_name, year, artist_ids, genre_ids, version FROM albums WHERE sort_name = $1`, sortName)
	return s.scanRow(row)
}

func (s *AlbumStore) Persist(ctx context.Context, id int64, a *domain.Album) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO albums (id, name, sort_name, year, artist_ids, genre_ids, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, sort_name = $3, year = $4, artist_ids = $5, genre_ids = $6, version = $7
		WHERE albums.version < $7`, id, a.Name, a.SortName, a.Year, a.ArtistIDs, a.GenreIDs, a.Version)
	if err != nil {
		return apperr.TransientBackend("persist album", err)
	}
	return nil
}

func (s *AlbumStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM albums WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove album", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Album] = (*AlbumStore)(nil)
var _ Store[int64, *domain.Album] = (*AlbumStore)(nil)

type AlbumRepo struct {
	buf   *Buffered[int64, *domain.Album]
	store *AlbumStore
}

func NewAlbumRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *AlbumRepo {
	store := NewAlbumStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Album](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Album](sizeThreshold, flushTimeout, persister, log)
	return &AlbumRepo{buf: NewBuffered[int64, *domain.Album](mem, cacheCapacity, store), store: store}
}

func (r *AlbumRepo) Save(a *domain.Album) error {
	r.buf.Save(context.Background(), a)
	return nil
}

func (r *AlbumRepo) FindByID(id int64) (*domain.Album, error) {
	a, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("album", formatID(id))
	}
	return a, nil
}

func (r *AlbumRepo) FindBySortName(sortName string) (*domain.Album, error) {
	if a, ok := r.buf.GetByIndex("sort_name", sortName); ok {
		return a, nil
	}
	a, ok, err := r.store.LoadBySortName(context.Background(), sortName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("album", sortName)
	}
	return a, nil
}
