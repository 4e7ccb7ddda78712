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

type PlaylistStore struct {
	db *database.DB
}

func NewPlaylistStore(db *database.DB) *PlaylistStore { return &PlaylistStore{db: db} }

func (s *PlaylistStore) scanRow(row pgx.Row) (*domain.Playlist, bool, error) {
	p := &domain.Playlist{}
	var entriesJSON []byte
	if err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Comment, &p.Public, &entriesJSON, &p.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load playlist", err)
	}
	if len(entriesJSON) > 0 {
		if err := json.Unmarshal(entriesJSON, &p.Entries); err != nil {
			return nil, false, apperr.TransientBackend("decode playlist entries", err)
		}
	}
	return p, true, nil
}

func (s *PlaylistStore) Load(ctx context.Context, id int64) (*domain.Playlist, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT id, name, owner_id, comment, public, entries, version FROM playlists WHERE id = $1`, id)
	return s.scanRow(row)
}

// LoadAllByOwnerID bypasses the memtable, same as CoverArtStore's
// LoadAllByAudioFileID: one-to-many lookups aren't what the prefix index on
// the active memtable is built to answer efficiently once cold.
func (s *PlaylistStore) LoadAllByOwnerID(ctx context.Context, ownerID int64) ([]*domain.Playlist, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, owner_id, comment, public, entries, version FROM playlists WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, apperr.TransientBackend("load playlists by owner", err)
	}
	defer rows.Close()

	var out []*domain.Playlist
	for rows.Next() {
		p, ok, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

func (s *PlaylistStore) Persist(ctx context.Context, id int64, p *domain.Playlist) error {
	entriesJSON, err := json.Marshal(p.Entries)
	if err != nil {
		return apperr.InvalidInput("encode playlist entries: " + err.Error())
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO playlists (id, name, owner_id, comment, public, entries, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, comment = $4, public = $5, entries = $6, version = $7
		WHERE playlists.version < $7`,
		id, p.Name, p.OwnerID, p.Comment, p.Public, entriesJSON, p.Version)
	if err != nil {
		return apperr.TransientBackend("persist playlist", err)
	}
	return nil
}

func (s *PlaylistStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove playlist", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Playlist] = (*PlaylistStore)(nil)
var _ Store[int64, *domain.Playlist] = (*PlaylistStore)(nil)

type PlaylistRepo struct {
	buf   *Buffered[int64, *domain.Playlist]
	store *PlaylistStore
}

func NewPlaylistRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *PlaylistRepo {
	store := NewPlaylistStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Playlist](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Playlist](sizeThreshold, flushTimeout, persister, log)
	return &PlaylistRepo{buf: NewBuffered[int64, *domain.Playlist](mem, cacheCapacity, store), store: store}
}

func (r *PlaylistRepo) Save(p *domain.Playlist) error {
	r.buf.Save(context.Background(), p)
	return nil
}

func (r *PlaylistRepo) FindByID(id int64) (*domain.Playlist, error) {
	p, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("playlist", formatID(id))
	}
	return p, nil
}

func (r *PlaylistRepo) FindByOwnerID(ownerID int64) ([]*domain.Playlist, error) {
	return r.store.LoadAllByOwnerID(context.Background(), ownerID)
}

func (r *PlaylistRepo) Delete(id int64) error {
	r.buf.Remove(id)
	return r.store.Remove(context.Background(), id)
}

var _ domain.PlaylistRepository = (*PlaylistRepo)(nil)
