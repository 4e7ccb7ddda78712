package projector

import (
	"context"
	"time"

	"melodia/internal/apperr"
	"melodia/internal/database"
	"melodia/internal/snowflake"
)

// locationsStore maintains album_locations, artist_locations, and
// playback_history directly against pgx rather than through the memtable
// buffer: per spec.md §4.7 these are lower-write-volume than the stats
// tables, so a thinner adapter is enough.
type locationsStore struct {
	db  *database.DB
	ids *snowflake.Generator
}

func newLocationsStore(db *database.DB, ids *snowflake.Generator) *locationsStore {
	return &locationsStore{db: db, ids: ids}
}

func (s *locationsStore) adjustAlbumLocation(ctx context.Context, albumID int64, rootPath string, delta int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO album_locations (album_id, root_path, item_count)
		VALUES ($1,$2,$3)
		ON CONFLICT (album_id, root_path) DO UPDATE SET item_count = album_locations.item_count + $3`,
		albumID, rootPath, delta)
	if err != nil {
		return apperr.TransientBackend("adjust album location", err)
	}
	return nil
}

func (s *locationsStore) adjustArtistLocation(ctx context.Context, artistID int64, rootPath string, delta int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO artist_locations (artist_id, root_path, item_count)
		VALUES ($1,$2,$3)
		ON CONFLICT (artist_id, root_path) DO UPDATE SET item_count = artist_locations.item_count + $3`,
		artistID, rootPath, delta)
	if err != nil {
		return apperr.TransientBackend("adjust artist location", err)
	}
	return nil
}

func (s *locationsStore) recordPlayback(ctx context.Context, userID, audioFileID int64, submission bool, playedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO playback_history (id, user_id, audio_file_id, submission, played_at)
		VALUES ($1,$2,$3,$4,$5)`,
		s.ids.Next(), userID, audioFileID, submission, playedAt)
	if err != nil {
		return apperr.TransientBackend("record playback", err)
	}
	return nil
}
