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

// AnnotationStore persists Annotation rows keyed by the composite
// (user_id, item_kind, item_id) natural key domain.AnnotationKey encodes.
type AnnotationStore struct {
	db *database.DB
}

func NewAnnotationStore(db *database.DB) *AnnotationStore { return &AnnotationStore{db: db} }

func (s *AnnotationStore) scanRow(row pgx.Row) (*domain.Annotation, bool, error) {
	a := &domain.Annotation{}
	if err := row.Scan(&a.UserID, &a.ItemKind, &a.ItemID, &a.Rating, &a.Starred, &a.StarredAt, &a.PlayedCount, &a.PlayedAt, &a.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load annotation", err)
	}
	return a, true, nil
}

func (s *AnnotationStore) Load(ctx context.Context, key string) (*domain.Annotation, bool, error) {
	userID, kind, itemID, err := domain.ParseAnnotationKey(key)
	if err != nil {
		return nil, false, apperr.InvalidInput(err.Error())
	}
	row := s.db.QueryRow(ctx, `
		SELECT user_id, item_kind, item_id, rating, starred, starred_at, played_count, played_at, version
		FROM annotations WHERE user_id = $1 AND item_kind = $2 AND item_id = $3`, userID, kind, itemID)
	return s.scanRow(row)
}

func (s *AnnotationStore) Persist(ctx context.Context, key string, a *domain.Annotation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO annotations (user_id, item_kind, item_id, rating, starred, starred_at, played_count, played_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, item_kind, item_id) DO UPDATE SET
			rating = $4, starred = $5, starred_at = $6, played_count = $7, played_at = $8, version = $9
		WHERE annotations.version < $9`,
		a.UserID, a.ItemKind, a.ItemID, a.Rating, a.Starred, a.StarredAt, a.PlayedCount, a.PlayedAt, a.Version)
	if err != nil {
		return apperr.TransientBackend("persist annotation", err)
	}
	return nil
}

func (s *AnnotationStore) Remove(ctx context.Context, key string) error {
	userID, kind, itemID, err := domain.ParseAnnotationKey(key)
	if err != nil {
		return apperr.InvalidInput(err.Error())
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM annotations WHERE user_id = $1 AND item_kind = $2 AND item_id = $3`, userID, kind, itemID); err != nil {
		return apperr.TransientBackend("remove annotation", err)
	}
	return nil
}

var _ memtable.Persister[string, *domain.Annotation] = (*AnnotationStore)(nil)
var _ Store[string, *domain.Annotation] = (*AnnotationStore)(nil)

type AnnotationRepo struct {
	buf   *Buffered[string, *domain.Annotation]
	store *AnnotationStore
}

func NewAnnotationRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *AnnotationRepo {
	store := NewAnnotationStore(db)
	persister := memtable.NewBoundedPersister[string, *domain.Annotation](store, persistConcurrency, log)
	mem := memtable.NewContext[string, *domain.Annotation](sizeThreshold, flushTimeout, persister, log)
	return &AnnotationRepo{buf: NewBuffered[string, *domain.Annotation](mem, cacheCapacity, store), store: store}
}

func (r *AnnotationRepo) Save(a *domain.Annotation) error {
	r.buf.Save(context.Background(), a)
	return nil
}

func (r *AnnotationRepo) Find(userID int64, kind domain.AnnotationItemKind, itemID int64) (*domain.Annotation, error) {
	key := domain.AnnotationKey(userID, kind, itemID)
	a, ok, err := r.buf.Get(context.Background(), key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("annotation", key)
	}
	return a, nil
}

var _ domain.AnnotationRepository = (*AnnotationRepo)(nil)
