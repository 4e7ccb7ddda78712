package domain

import (
	"strconv"
	"strings"
	"time"

	"melodia/internal/apperr"
	"melodia/internal/memtable"
)

type AnnotationItemKind int

const (
	AnnotatedAudioFile AnnotationItemKind = iota
	AnnotatedAlbum
	AnnotatedArtist
	AnnotatedPlaylist
)

type AnnotationEventKind int

const (
	AnnotationEventStarred AnnotationEventKind = iota
	AnnotationEventUnstarred
	AnnotationEventRated
	AnnotationEventScrobbled
)

type AnnotationEvent struct {
	Kind       AnnotationEventKind
	UserID     int64
	ItemKind   AnnotationItemKind
	ItemID     int64
	Vers       int64
	Payload    any
}

func (e AnnotationEvent) AggregateID() int64 { return e.ItemID }
func (e AnnotationEvent) Version() int64     { return e.Vers }

// Annotation is a per-user per-item overlay: rating, starred, play counts —
// distinct from the item aggregate itself.
type Annotation struct {
	UserID        int64
	ItemKind      AnnotationItemKind
	ItemID        int64
	Rating        int
	Starred       bool
	StarredAt     *time.Time
	PlayedCount   int
	PlayedAt      *time.Time
	Version       int64
	PendingEvents []AnnotationEvent
}

func NewAnnotation(userID int64, kind AnnotationItemKind, itemID int64) *Annotation {
	return &Annotation{UserID: userID, ItemKind: kind, ItemID: itemID}
}

func (a *Annotation) record(kind AnnotationEventKind, payload any) {
	a.Version++
	a.PendingEvents = append(a.PendingEvents, AnnotationEvent{
		Kind: kind, UserID: a.UserID, ItemKind: a.ItemKind, ItemID: a.ItemID, Vers: a.Version, Payload: payload,
	})
}

func (a *Annotation) Star() {
	if a.Starred {
		return
	}
	now := time.Now().UTC()
	a.Starred = true
	a.StarredAt = &now
	a.record(AnnotationEventStarred, nil)
}

func (a *Annotation) Unstar() {
	if !a.Starred {
		return
	}
	a.Starred = false
	a.StarredAt = nil
	a.record(AnnotationEventUnstarred, nil)
}

// SetRating fails when rating is outside 0..=5.
func (a *Annotation) SetRating(rating int) error {
	if rating < 0 || rating > 5 {
		return apperr.InvalidInput("rating must be between 0 and 5")
	}
	a.Rating = rating
	a.record(AnnotationEventRated, rating)
	return nil
}

// Scrobble records a play. submission distinguishes a "now playing" ping
// (false) from a completed-playback submission (true) per the Subsonic
// scrobble contract; only submissions increment PlayedCount.
func (a *Annotation) Scrobble(submission bool, at time.Time) {
	if submission {
		a.PlayedCount++
		a.PlayedAt = &at
	}
	a.record(AnnotationEventScrobbled, submission)
}

func (a *Annotation) TakeEvents() []AnnotationEvent {
	e := a.PendingEvents
	a.PendingEvents = nil
	return e
}

type AnnotationRepository interface {
	Save(a *Annotation) error
	Find(userID int64, kind AnnotationItemKind, itemID int64) (*Annotation, error)
}

// AnnotationKey builds the composite natural key an Annotation is stored
// under: no aggregate has its own minted id, so (user, item kind, item)
// identifies it directly.
func AnnotationKey(userID int64, kind AnnotationItemKind, itemID int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.Itoa(int(kind)) + ":" + strconv.FormatInt(itemID, 10)
}

func (a *Annotation) GetKey() string { return AnnotationKey(a.UserID, a.ItemKind, a.ItemID) }

func (a *Annotation) SecondaryIndexes() []memtable.IndexDescriptor { return nil }

// ParseAnnotationKey inverts AnnotationKey, used by the store to recover the
// natural key's parts for a point query.
func ParseAnnotationKey(key string) (userID int64, kind AnnotationItemKind, itemID int64, err error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0, apperr.InvalidInput("malformed annotation key: " + key)
	}
	uid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, apperr.InvalidInput("malformed annotation key: " + key)
	}
	k, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, apperr.InvalidInput("malformed annotation key: " + key)
	}
	iid, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, 0, apperr.InvalidInput("malformed annotation key: " + key)
	}
	return uid, AnnotationItemKind(k), iid, nil
}
