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

// ArtistStore is the pgx-backed persister and read port for the Artist
// buffered repository, grounded on database.DB's pgxpool wrapper.
type ArtistStore struct {
	db *database.DB
}

func NewArtistStore(db *database.DB) *ArtistStore {
	return &ArtistStore{db: db}
}

func (s *ArtistStore) Load(ctx context.Context, id int64) (*domain.Artist, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, sort_name, version FROM artists WHERE id = $1`, id)
	a := &domain.Artist{}
	if err := row.Scan(&a.ID, &a.Name, &a.SortName, &a.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load artist", err)
	}
	return a, true, nil
}

func (s *ArtistStore) LoadBySortName(ctx context.Context, sortName string) (*domain.Artist, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, sort_name, version FROM artists WHERE sort_name = $1`, sortName)
	a := &domain.Artist{}
	if err := row.Scan(&a.ID, &a.Name, &a.SortName, &a.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load artist by sort name", err)
	}
	return a, true, nil
}

// Persist satisfies memtable.Persister[int64, *domain.Artist]: upsert by id,
// checking version for optimistic concurrency per spec.md's persister
// discipline.
func (s *ArtistStore) Persist(ctx context.Context, id int64, a *domain.Artist) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO artists (id, name, sort_name, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, sort_name = $3, version = $4
		WHERE artists.version < $4`, id, a.Name, a.SortName, a.Version)
	if err != nil {
		return apperr.TransientBackend("persist artist", err)
	}
	return nil
}

func (s *ArtistStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM artists WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove artist", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Artist] = (*ArtistStore)(nil)
var _ Store[int64, *domain.Artist] = (*ArtistStore)(nil)

// ArtistRepo is the buffered domain.ArtistRepository implementation: writes
// land in the memtable first, reads hit active/immutable memtable, then the
// LRU, then the pgx store.
type ArtistRepo struct {
	buf   *Buffered[int64, *domain.Artist]
	store *ArtistStore
}

func NewArtistRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *ArtistRepo {
	store := NewArtistStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Artist](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Artist](sizeThreshold, flushTimeout, persister, log)
	return &ArtistRepo{
		buf:   NewBuffered[int64, *domain.Artist](mem, cacheCapacity, store),
		store: store,
	}
}

func (r *ArtistRepo) Save(a *domain.Artist) error {
	r.buf.Save(context.Background(), a)
	return nil
}

func (r *ArtistRepo) FindByID(id int64) (*domain.Artist, error) {
	a, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("artist", formatID(id))
	}
	return a, nil
}

func (r *ArtistRepo) FindBySortName(sortName string) (*domain.Artist, error) {
	if a, ok := r.buf.GetByIndex("sort_name", sortName); ok {
		return a, nil
	}
	a, ok, err := r.store.LoadBySortName(context.Background(), sortName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("artist", sortName)
	}
	return a, nil
}
