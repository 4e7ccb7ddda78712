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

type PlayerStore struct {
	db *database.DB
}

func NewPlayerStore(db *database.DB) *PlayerStore { return &PlayerStore{db: db} }

func (s *PlayerStore) scanRow(row pgx.Row) (*domain.Player, bool, error) {
	p := &domain.Player{}
	var state, mode int
	if err := row.Scan(&p.ID, &p.UserID, &state, &p.CurrentItem, &mode, &p.LastOpTime, &p.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load player", err)
	}
	p.State = domain.PlayerState(state)
	p.Mode = domain.PlaybackMode(mode)
	return p, true, nil
}

func (s *PlayerStore) Load(ctx context.Context, id int64) (*domain.Player, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, user_id, state, current_item, mode, last_op_time, version FROM players WHERE id = $1`, id)
	return s.scanRow(row)
}

func (s *PlayerStore) LoadByUserID(ctx context.Context, userID int64) (*domain.Player, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, user_id, state, current_item, mode, last_op_time, version FROM players WHERE user_id = $1`, userID)
	return s.scanRow(row)
}

func (s *PlayerStore) Persist(ctx context.Context, id int64, p *domain.Player) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO players (id, user_id, state, current_item, mode, last_op_time, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			state = $3, current_item = $4, mode = $5, last_op_time = $6, version = $7
		WHERE players.version < $7`,
		id, p.UserID, int(p.State), p.CurrentItem, int(p.Mode), p.LastOpTime, p.Version)
	if err != nil {
		return apperr.TransientBackend("persist player", err)
	}
	return nil
}

func (s *PlayerStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM players WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove player", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Player] = (*PlayerStore)(nil)
var _ Store[int64, *domain.Player] = (*PlayerStore)(nil)

type PlayerRepo struct {
	buf   *Buffered[int64, *domain.Player]
	store *PlayerStore
}

func NewPlayerRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *PlayerRepo {
	store := NewPlayerStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Player](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Player](sizeThreshold, flushTimeout, persister, log)
	return &PlayerRepo{buf: NewBuffered[int64, *domain.Player](mem, cacheCapacity, store), store: store}
}

func (r *PlayerRepo) Save(p *domain.Player) error {
	r.buf.Save(context.Background(), p)
	return nil
}

func (r *PlayerRepo) FindByID(id int64) (*domain.Player, error) {
	p, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("player", formatID(id))
	}
	return p, nil
}

func (r *PlayerRepo) FindByUserID(userID int64) (*domain.Player, error) {
	if p, ok := r.buf.GetByIndex("user_id", formatID(userID)); ok {
		return p, nil
	}
	p, ok, err := r.store.LoadByUserID(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("player", formatID(userID))
	}
	return p, nil
}

var _ domain.PlayerRepository = (*PlayerRepo)(nil)
