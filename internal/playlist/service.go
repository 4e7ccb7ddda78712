// Package playlist implements playlist mutation on top of domain.Playlist
// and domain.PlaylistRepository: the REST surface for create/rename/add/
// remove, replacing the old SQL-backed services.PlaylistService. Entries
// cannot be reordered.
package playlist

import (
	"log/slog"
	"strconv"

	"melodia/internal/apperr"
	"melodia/internal/domain"
	"melodia/internal/snowflake"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

type Service struct {
	repo domain.PlaylistRepository
	ids  *snowflake.Generator
	log  *slog.Logger
}

func NewService(repo domain.PlaylistRepository, ids *snowflake.Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, ids: ids, log: log}
}

func (s *Service) Create(ownerID int64, name string) (*domain.Playlist, error) {
	if name == "" {
		return nil, apperr.InvalidInput("playlist name is required")
	}
	p := domain.NewPlaylist(s.ids.Next(), ownerID, name)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(id, requesterID int64) (*domain.Playlist, error) {
	p, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(p, requesterID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListOwned(ownerID int64) ([]*domain.Playlist, error) {
	return s.repo.FindByOwnerID(ownerID)
}

func (s *Service) Rename(id, requesterID int64, name, comment string, public bool) (*domain.Playlist, error) {
	p, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(p, requesterID); err != nil {
		return nil, err
	}
	p.Rename(name, comment, public)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AddEntries(id, requesterID int64, audioFileIDs []int64) (*domain.Playlist, error) {
	p, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(p, requesterID); err != nil {
		return nil, err
	}
	entries := make([]domain.PlaylistEntry, len(audioFileIDs))
	for i, afID := range audioFileIDs {
		entries[i] = domain.PlaylistEntry{ID: s.ids.Next(), AudioFileID: afID}
	}
	p.AddEntries(entries)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) RemoveEntriesByIndex(id, requesterID int64, indexes []int) (*domain.Playlist, error) {
	p, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(p, requesterID); err != nil {
		return nil, err
	}
	p.RemoveByIndexes(indexes)
	if err := s.repo.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(id, requesterID int64) error {
	p, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(p, requesterID); err != nil {
		return err
	}
	p.Delete()
	return s.repo.Delete(id)
}

func (s *Service) authorize(p *domain.Playlist, requesterID int64) error {
	if p.Public || p.OwnerID == requesterID {
		return nil
	}
	return apperr.NotFound("playlist", formatID(p.ID))
}

func (s *Service) authorizeOwner(p *domain.Playlist, requesterID int64) error {
	if p.OwnerID != requesterID {
		return apperr.ConflictingState("only the playlist owner may modify it")
	}
	return nil
}
