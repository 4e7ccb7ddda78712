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

type GenreStore struct {
	db *database.DB
}

func NewGenreStore(db *database.DB) *GenreStore { return &GenreStore{db: db} }

func (s *GenreStore) Load(ctx context.Context, id int64) (*domain.Genre, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, canonical_name, version FROM genres WHERE id = $1`, id)
	g := &domain.Genre{}
	if err := row.Scan(&g.ID, &g.Name, &g.CanonicalName, &g.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load genre", err)
	}
	return g, true, nil
}

func (s *GenreStore) LoadByCanonicalName(ctx context.Context, name string) (*domain.Genre, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, canonical_name, version FROM genres WHERE canonical_name = $1`, name)
	g := &domain.Genre{}
	if err := row.Scan(&g.ID, &g.Name, &g.CanonicalName, &g.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load genre by canonical name", err)
	}
	return g, true, nil
}

func (s *GenreStore) Persist(ctx context.Context, id int64, g *domain.Genre) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO genres (id, name, canonical_name, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, canonical_name = $3, version = $4
		WHERE genres.version < $4`, id, g.Name, g.CanonicalName, g.Version)
	if err != nil {
		return apperr.TransientBackend("persist genre", err)
	}
	return nil
}

func (s *GenreStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM genres WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove genre", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Genre] = (*GenreStore)(nil)
var _ Store[int64, *domain.Genre] = (*GenreStore)(nil)

type GenreRepo struct {
	buf   *Buffered[int64, *domain.Genre]
	store *GenreStore
}

func NewGenreRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *GenreRepo {
	store := NewGenreStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Genre](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Genre](sizeThreshold, flushTimeout, persister, log)
	return &GenreRepo{buf: NewBuffered[int64, *domain.Genre](mem, cacheCapacity, store), store: store}
}

func (r *GenreRepo) Save(g *domain.Genre) error {
	r.buf.Save(context.Background(), g)
	return nil
}

func (r *GenreRepo) FindByID(id int64) (*domain.Genre, error) {
	g, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("genre", formatID(id))
	}
	return g, nil
}

func (r *GenreRepo) FindByCanonicalName(name string) (*domain.Genre, error) {
	if g, ok := r.buf.GetByIndex("canonical_name", name); ok {
		return g, nil
	}
	g, ok, err := r.store.LoadByCanonicalName(context.Background(), name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("genre", name)
	}
	return g, nil
}
