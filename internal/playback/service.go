// Package playback implements the per-user playback surface that sits
// alongside the library domain: player state transitions, the saved play
// queue, and annotations (star/rate/scrobble). Each aggregate already
// carries its own invariants; this package is just the per-user lookup and
// repository plumbing the HTTP layer needs.
package playback

import (
	"log/slog"
	"time"

	"melodia/internal/apperr"
	"melodia/internal/domain"
	"melodia/internal/snowflake"
)

type Service struct {
	players     domain.PlayerRepository
	playQueues  domain.PlayQueueRepository
	annotations domain.AnnotationRepository
	ids         *snowflake.Generator
	log         *slog.Logger
}

func NewService(players domain.PlayerRepository, playQueues domain.PlayQueueRepository, annotations domain.AnnotationRepository, ids *snowflake.Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{players: players, playQueues: playQueues, annotations: annotations, ids: ids, log: log}
}

// playerFor finds the caller's player, minting one on first use: a client
// never allocates its own player id, it just acts as a given user.
func (s *Service) playerFor(userID int64) (*domain.Player, error) {
	p, err := s.players.FindByUserID(userID)
	if err == nil {
		return p, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	p = domain.NewPlayer(s.ids.Next(), userID)
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Play(userID, itemID int64) (*domain.Player, error) {
	p, err := s.playerFor(userID)
	if err != nil {
		return nil, err
	}
	p.Play(itemID)
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Pause(userID int64) (*domain.Player, error) {
	p, err := s.playerFor(userID)
	if err != nil {
		return nil, err
	}
	if err := p.Pause(); err != nil {
		return nil, err
	}
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Resume(userID int64) (*domain.Player, error) {
	p, err := s.playerFor(userID)
	if err != nil {
		return nil, err
	}
	if err := p.Resume(); err != nil {
		return nil, err
	}
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Stop(userID int64) (*domain.Player, error) {
	p, err := s.playerFor(userID)
	if err != nil {
		return nil, err
	}
	p.Stop()
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Heartbeat(userID int64) (*domain.Player, error) {
	p, err := s.playerFor(userID)
	if err != nil {
		return nil, err
	}
	p.Heartbeat()
	if err := s.players.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveQueue replaces the caller's queue wholesale, matching the Subsonic
// savePlayQueue contract: the whole item list and current position are
// supplied by the client on every call, not incrementally mutated.
func (s *Service) SaveQueue(userID int64, items []int64, current *int64, positionMs int64, changedBy string) (*domain.PlayQueue, error) {
	existing, err := s.playQueues.FindByUserID(userID)
	id := s.ids.Next()
	if err == nil {
		id = existing.ID
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	q := domain.FromSavedState(id, userID, items, current, positionMs, changedBy)
	if err := s.playQueues.Save(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) GetQueue(userID int64) (*domain.PlayQueue, error) {
	return s.playQueues.FindByUserID(userID)
}

func (s *Service) findOrCreateAnnotation(userID int64, kind domain.AnnotationItemKind, itemID int64) (*domain.Annotation, error) {
	a, err := s.annotations.Find(userID, kind, itemID)
	if err == nil {
		return a, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return domain.NewAnnotation(userID, kind, itemID), nil
}

func (s *Service) Star(userID int64, kind domain.AnnotationItemKind, itemID int64) error {
	a, err := s.findOrCreateAnnotation(userID, kind, itemID)
	if err != nil {
		return err
	}
	a.Star()
	return s.annotations.Save(a)
}

func (s *Service) Unstar(userID int64, kind domain.AnnotationItemKind, itemID int64) error {
	a, err := s.findOrCreateAnnotation(userID, kind, itemID)
	if err != nil {
		return err
	}
	a.Unstar()
	return s.annotations.Save(a)
}

func (s *Service) Rate(userID int64, kind domain.AnnotationItemKind, itemID int64, rating int) error {
	a, err := s.findOrCreateAnnotation(userID, kind, itemID)
	if err != nil {
		return err
	}
	if err := a.SetRating(rating); err != nil {
		return err
	}
	return s.annotations.Save(a)
}

// Scrobble records a play against an audio file's own annotation; the
// annotations of its album and artist are not touched. submission
// distinguishes a "now playing" ping from a completed-playback submission.
// The annotation's pending events are not published on the bus, so the
// projector's playback_history log receives nothing from this call.
func (s *Service) Scrobble(userID, audioFileID int64, submission bool) error {
	a, err := s.findOrCreateAnnotation(userID, domain.AnnotatedAudioFile, audioFileID)
	if err != nil {
		return err
	}
	a.Scrobble(submission, time.Now().UTC())
	return s.annotations.Save(a)
}
