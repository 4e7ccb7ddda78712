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

// LibraryStore persists Items as a jsonb blob rather than a join table — a
// library's item set is rewritten wholesale at the end of every scan, so
// there is no per-item write path a relational schema would earn its keep
// on.
type LibraryStore struct {
	db *database.DB
}

func NewLibraryStore(db *database.DB) *LibraryStore { return &LibraryStore{db: db} }

func (s *LibraryStore) Load(ctx context.Context, id int64) (*domain.Library, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, path_protocol, path, items, scan_status, last_scan_at, version
		FROM libraries WHERE id = $1`, id)

	l := &domain.Library{}
	var protocol, path string
	var itemsJSON []byte
	if err := row.Scan(&l.ID, &l.Name, &protocol, &path, &itemsJSON, &l.ScanStatus, &l.LastScanAt, &l.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load library", err)
	}
	l.Path = domain.MediaPath{Protocol: protocol, Path: path}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &l.Items); err != nil {
			return nil, false, apperr.TransientBackend("decode library items", err)
		}
	}
	return l, true, nil
}

func (s *LibraryStore) LoadByPath(ctx context.Context, path domain.MediaPath) (*domain.Library, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, path_protocol, path, items, scan_status, last_scan_at, version
		FROM libraries WHERE path_protocol = $1 AND path = $2`, path.Protocol, path.Path)

	l := &domain.Library{}
	var protocol, p string
	var itemsJSON []byte
	if err := row.Scan(&l.ID, &l.Name, &protocol, &p, &itemsJSON, &l.ScanStatus, &l.LastScanAt, &l.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load library by path", err)
	}
	l.Path = domain.MediaPath{Protocol: protocol, Path: p}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &l.Items); err != nil {
			return nil, false, apperr.TransientBackend("decode library items", err)
		}
	}
	return l, true, nil
}

func (s *LibraryStore) Persist(ctx context.Context, id int64, l *domain.Library) error {
	itemsJSON, err := json.Marshal(l.Items)
	if err != nil {
		return apperr.InvalidInput("encode library items: " + err.Error())
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO libraries (id, name, path_protocol, path, items, scan_status, last_scan_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, path_protocol = $3, path = $4, items = $5, scan_status = $6, last_scan_at = $7, version = $8
		WHERE libraries.version < $8`,
		id, l.Name, l.Path.Protocol, l.Path.Path, itemsJSON, l.ScanStatus, l.LastScanAt, l.Version)
	if err != nil {
		return apperr.TransientBackend("persist library", err)
	}
	return nil
}

func (s *LibraryStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, id); err != nil {
		return apperr.TransientBackend("remove library", err)
	}
	return nil
}

var _ memtable.Persister[int64, *domain.Library] = (*LibraryStore)(nil)
var _ Store[int64, *domain.Library] = (*LibraryStore)(nil)

type LibraryRepo struct {
	buf   *Buffered[int64, *domain.Library]
	store *LibraryStore
}

func NewLibraryRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *LibraryRepo {
	store := NewLibraryStore(db)
	persister := memtable.NewBoundedPersister[int64, *domain.Library](store, persistConcurrency, log)
	mem := memtable.NewContext[int64, *domain.Library](sizeThreshold, flushTimeout, persister, log)
	return &LibraryRepo{buf: NewBuffered[int64, *domain.Library](mem, cacheCapacity, store), store: store}
}

// FindByPath is a bootstrap-only lookup (not part of domain.LibraryRepository)
// used at startup to find-or-create the Library aggregate for a configured
// media root, bypassing the memtable/LRU hops since it runs once per process.
func (r *LibraryRepo) FindByPath(path domain.MediaPath) (*domain.Library, bool, error) {
	return r.store.LoadByPath(context.Background(), path)
}

func (r *LibraryRepo) Save(l *domain.Library) error {
	r.buf.Save(context.Background(), l)
	return nil
}

func (r *LibraryRepo) FindByID(id int64) (*domain.Library, error) {
	l, ok, err := r.buf.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("library", formatID(id))
	}
	return l, nil
}

var _ domain.LibraryRepository = (*LibraryRepo)(nil)
var _ domain.ArtistRepository = (*ArtistRepo)(nil)
var _ domain.GenreRepository = (*GenreRepo)(nil)
var _ domain.AlbumRepository = (*AlbumRepo)(nil)
var _ domain.AudioFileRepository = (*AudioFileRepo)(nil)
