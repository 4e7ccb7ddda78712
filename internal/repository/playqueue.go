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

type PlayQueueStore struct {
	db *database.DB
}

func NewPlayQueueStore(db *database.DB) *PlayQueueStore { return &PlayQueueStore{db: db} }

func (s *PlayQueueStore) scanRow(row pgx.Row) (*domain.PlayQueue, bool, error) {
	q := &domain.PlayQueue{}
	if err := row.Scan(&q.ID, &q.Name, &q.UserID, &q.Items, &q.CurrentIndex, &q.PositionMs, &q.ChangedBy, &q.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load play queue", err)
	}
	return q, true, nil
}

func (s *PlayQueueStore) Load(ctx context.Context, id int64) (*domain.PlayQueue, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, user_id, items, current_index, position_ms, changed_by, updated_at FROM play_queues WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *PlayQueueStore) LoadByUserID(ctx context.Context, userID int64) (*domain.PlayQueue, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, user_id, items, current_index, position_ms, changed_by, updated_at FROM play_queues WHERE user_id = $1`, userID)
	return s.scanRow(row)
}

func (s *PlayQueueStore) Persist(ctx context.Context, id int64, q *domain.PlayQueue) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO play_queues (id, name, user_id, items, current_index, position_ms, changed_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, items = $4, current_index = $5, position_ms = $6, changed_by = $7, updated_at = $8`,
		id, q.Name, q.UserID, q.Items, q.CurrentIndex, q.PositionMs, q.ChangedBy, q.UpdatedAt)
	if err != nil {
		return apperr.TransientBackend("persist play queue", err)
	}
	return nil
}

func (s *PlayQueueStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM play_queues WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove play queue", err)
	}
	return nil
}

func (s *PlayQueueStore) RemoveByUserID(ctx context.Context, userID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM play_queues WHERE user_id = $1`, userID); err != nil {
		return apperr.TransientBackend("remove play queue by user", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.PlayQueue] = (*PlayQueueStore)(nil)
var _ Store[int64, *domain.PlayQueue] = (*PlayQueueStore)(nil)

// PlayQueue has no Version field (see domain.PlayQueue's doc comment), so
// its Persist has no optimistic-concurrency guard — last writer wins, which
// matches the original source's savePlayQueue semantics (full replace).
type PlayQueueRepo struct {
	buf   *Buffered[int64, *domain.PlayQueue]
	store *PlayQueueStore
}

func NewPlayQueueRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *PlayQueueRepo {
	store := NewPlayQueueStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.PlayQueue](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.PlayQueue](sizeThreshold, flushTimeout, persister, log)
	return &PlayQueueRepo{buf: NewBuffered[int64, *domain.PlayQueue](mem, cacheCapacity, store), store: store}
}

func (r *PlayQueueRepo) Save(q *domain.PlayQueue) error {
	r.buf.Save(context.Background(), q)
	return nil
}

func (r *PlayQueueRepo) FindByID(id int64) (*domain.PlayQueue, error) {
	q, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("play_queue", formatID(id))
	}
	return q, nil
}

func (r *PlayQueueRepo) FindByUserID(userID int64) (*domain.PlayQueue, error) {
	if q, ok := r.buf.GetByIndex("user_id", formatID(userID)); ok {
		return q, nil
	}
	q, ok, err := r.store.LoadByUserID(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("play_queue", formatID(userID))
	}
	return q, nil
}

func (r *PlayQueueRepo) Delete(id int64) error {
	r.buf.Remove(id)
	return r.store.Remove(context.Background(), id)
}

func (r *PlayQueueRepo) DeleteByUserID(userID int64) error {
	return r.store.RemoveByUserID(context.Background(), userID)
}

var _ domain.PlayQueueRepository = (*PlayQueueRepo)(nil)
