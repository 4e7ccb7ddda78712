package projector

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"melodia/internal/apperr"
	"melodia/internal/database"
	"melodia/internal/memtable"
	"melodia/internal/repository"
)

func parseParticipantKey(key string) (artistID int64, role int, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0, apperr.InvalidInput("malformed participant stats key: " + key)
	}
	artistID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, apperr.InvalidInput("malformed participant stats key: " + key)
	}
	roleInt, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, apperr.InvalidInput("malformed participant stats key: " + key)
	}
	return artistID, roleInt, nil
}

type albumStatsStore struct{ db *database.DB }

func (s *albumStatsStore) Load(ctx context.Context, albumID int64) (*AlbumStats, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT album_id, song_count, duration_seconds, size_bytes FROM album_stats WHERE album_id = $1`, albumID)
	st := &AlbumStats{}
	if err := row.Scan(&st.AlbumID, &st.SongCount, &st.DurationSeconds, &st.SizeBytes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load album stats", err)
	}
	return st, true, nil
}

func (s *albumStatsStore) Persist(ctx context.Context, albumID int64, st *AlbumStats) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO album_stats (album_id, song_count, duration_seconds, size_bytes)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (album_id) DO UPDATE SET
			song_count = $2, duration_seconds = $3, size_bytes = $4`,
		albumID, st.SongCount, st.DurationSeconds, st.SizeBytes)
	if err != nil {
		return apperr.TransientBackend("persist album stats", err)
	}
	return nil
}

func (s *albumStatsStore) Remove(ctx context.Context, albumID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM album_stats WHERE album_id = $1`, albumID); err != nil {
		return apperr.TransientBackend("remove album stats", err)
	}
	return nil
}

var _ memtable.Persister[int64, *AlbumStats] = (*albumStatsStore)(nil)
var _ repository.Store[int64, *AlbumStats] = (*albumStatsStore)(nil)

type participantStatsStore struct{ db *database.DB }

func (s *participantStatsStore) Load(ctx context.Context, key string) (*ParticipantStats, bool, error) {
	artistID, role, err := parseParticipantKey(key)
	if err != nil {
		return nil, false, err
	}
	row := s.db.QueryRow(ctx, `SELECT artist_id, role, song_count, duration_seconds FROM participant_stats WHERE artist_id = $1 AND role = $2`, artistID, role)
	st := &ParticipantStats{}
	if err := row.Scan(&st.ArtistID, &st.Role, &st.SongCount, &st.DurationSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load participant stats", err)
	}
	return st, true, nil
}

func (s *participantStatsStore) Persist(ctx context.Context, key string, st *ParticipantStats) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO participant_stats (artist_id, role, song_count, duration_seconds)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (artist_id, role) DO UPDATE SET
			song_count = $3, duration_seconds = $4`,
		st.ArtistID, st.Role, st.SongCount, st.DurationSeconds)
	if err != nil {
		return apperr.TransientBackend("persist participant stats", err)
	}
	return nil
}

func (s *participantStatsStore) Remove(ctx context.Context, key string) error {
	artistID, role, err := parseParticipantKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM participant_stats WHERE artist_id = $1 AND role = $2`, artistID, role); err != nil {
		return apperr.TransientBackend("remove participant stats", err)
	}
	return nil
}

var _ memtable.Persister[string, *ParticipantStats] = (*participantStatsStore)(nil)
var _ repository.Store[string, *ParticipantStats] = (*participantStatsStore)(nil)

type genreStatsStore struct{ db *database.DB }

func (s *genreStatsStore) Load(ctx context.Context, genreID int64) (*GenreStats, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT genre_id, song_count, duration_seconds FROM genre_stats WHERE genre_id = $1`, genreID)
	st := &GenreStats{}
	if err := row.Scan(&st.GenreID, &st.SongCount, &st.DurationSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.TransientBackend("load genre stats", err)
	}
	return st, true, nil
}

func (s *genreStatsStore) Persist(ctx context.Context, genreID int64, st *GenreStats) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO genre_stats (genre_id, song_count, duration_seconds)
		VALUES ($1,$2,$3)
		ON CONFLICT (genre_id) DO UPDATE SET
			song_count = $2, duration_seconds = $3`,
		genreID, st.SongCount, st.DurationSeconds)
	if err != nil {
		return apperr.TransientBackend("persist genre stats", err)
	}
	return nil
}

func (s *genreStatsStore) Remove(ctx context.Context, genreID int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM genre_stats WHERE genre_id = $1`, genreID); err != nil {
		return apperr.TransientBackend("remove genre stats", err)
	}
	return nil
}

var _ memtable.Persister[int64, *GenreStats] = (*genreStatsStore)(nil)
var _ repository.Store[int64, *GenreStats] = (*genreStatsStore)(nil)

// statsRepo bundles the three buffered read-models behind one small set of
// ApplyXDelta methods, each guarded by keyMu so a read-increment-write
// sequence is never split across two concurrent scan workers touching the
// same key.
type statsRepo struct {
	db *database.DB

	keyMu sync.Mutex

	albums       *repository.Buffered[int64, *AlbumStats]
	albumStore   *albumStatsStore
	participants *repository.Buffered[string, *ParticipantStats]
	participantStore *participantStatsStore
	genres       *repository.Buffered[int64, *GenreStats]
	genreStore   *genreStatsStore
}

func newStatsRepo(db *database.DB, sizeThreshold, cacheCapacity int, flushTimeout time.Duration, persistConcurrency int, log *slog.Logger) *statsRepo {
	albumStore := &albumStatsStore{db: db}
	albumPersister := memtable.NewBoundedPersister[int64, *AlbumStats](albumStore, persistConcurrency, log)
	albumMem := memtable.NewContext[int64, *AlbumStats](sizeThreshold, flushTimeout, albumPersister, log)

	participantStore := &participantStatsStore{db: db}
	participantPersister := memtable.NewBoundedPersister[string, *ParticipantStats](participantStore, persistConcurrency, log)
	participantMem := memtable.NewContext[string, *ParticipantStats](sizeThreshold, flushTimeout, participantPersister, log)

	genreStore := &genreStatsStore{db: db}
	genrePersister := memtable.NewBoundedPersister[int64, *GenreStats](genreStore, persistConcurrency, log)
	genreMem := memtable.NewContext[int64, *GenreStats](sizeThreshold, flushTimeout, genrePersister, log)

	return &statsRepo{
		db:               db,
		albums:           repository.NewBuffered[int64, *AlbumStats](albumMem, cacheCapacity, albumStore),
		albumStore:       albumStore,
		participants:     repository.NewBuffered[string, *ParticipantStats](participantMem, cacheCapacity, participantStore),
		participantStore: participantStore,
		genres:           repository.NewBuffered[int64, *GenreStats](genreMem, cacheCapacity, genreStore),
		genreStore:       genreStore,
	}
}

func (r *statsRepo) applyAlbumDelta(ctx context.Context, albumID int64, songDelta int, durationDelta, sizeDelta int64) {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()

	st, ok, err := r.albums.Get(ctx, albumID)
	if err != nil {
		return
	}
	if !ok {
		st = &AlbumStats{AlbumID: albumID}
	}
	st.SongCount += songDelta
	st.DurationSeconds += durationDelta
	st.SizeBytes += sizeDelta
	r.albums.Save(ctx, st)
}

func (r *statsRepo) applyParticipantDelta(ctx context.Context, artistID int64, role int, songDelta int, durationDelta int64) {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()

	key := participantKey(artistID, role)
	st, ok, err := r.participants.Get(ctx, key)
	if err != nil {
		return
	}
	if !ok {
		st = &ParticipantStats{ArtistID: artistID, Role: role}
	}
	st.SongCount += songDelta
	st.DurationSeconds += durationDelta
	r.participants.Save(ctx, st)
}

func (r *statsRepo) applyGenreDelta(ctx context.Context, genreID int64, songDelta int, durationDelta int64) {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()

	st, ok, err := r.genres.Get(ctx, genreID)
	if err != nil {
		return
	}
	if !ok {
		st = &GenreStats{GenreID: genreID}
	}
	st.SongCount += songDelta
	st.DurationSeconds += durationDelta
	r.genres.Save(ctx, st)
}
