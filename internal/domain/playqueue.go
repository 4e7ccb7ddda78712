package domain

import (
	"strconv"
	"time"

	"melodia/internal/memtable"
)

type PlayQueueEventKind int

const (
	PlayQueueEventAdded PlayQueueEventKind = iota
	PlayQueueEventRemoved
	PlayQueueEventCleared
	PlayQueueEventReordered
)

type PlayQueueEvent struct {
	Kind        PlayQueueEventKind
	QueueID     int64
	Vers        int64
	AudioFileID *int64
}

func (e PlayQueueEvent) AggregateID() int64 { return e.QueueID }
func (e PlayQueueEvent) Version() int64     { return e.Vers }

// PlayQueue is a per-user ordered list of audio-file ids with a current
// index. It has no explicit Version field in the original source (events
// always carry version 0 — ordering within the aggregate is established by
// slice position, not by an incrementing counter) so PendingEvents is
// preserved verbatim from that shape.
type PlayQueue struct {
	ID            int64
	Name          string
	UserID        int64
	Items         []int64
	CurrentIndex  *int
	PositionMs    int64
	ChangedBy     string
	UpdatedAt     time.Time
	PendingEvents []PlayQueueEvent
}

func NewPlayQueue(id, userID int64, changedBy string) *PlayQueue {
	return &PlayQueue{ID: id, UserID: userID, ChangedBy: changedBy, UpdatedAt: time.Now().UTC()}
}

// FromSavedState reconstructs a queue from a flat item list plus a "current"
// id, as the savePlayQueue Subsonic endpoint supplies — current is resolved
// to an index by linear scan.
func FromSavedState(id, userID int64, items []int64, current *int64, position int64, changedBy string) *PlayQueue {
	q := &PlayQueue{
		ID: id, UserID: userID, Items: items, PositionMs: position,
		ChangedBy: changedBy, UpdatedAt: time.Now().UTC(),
	}
	if current != nil {
		for i, item := range items {
			if item == *current {
				idx := i
				q.CurrentIndex = &idx
				break
			}
		}
	}
	return q
}

func (q *PlayQueue) record(kind PlayQueueEventKind, audioFileID *int64) {
	q.PendingEvents = append(q.PendingEvents, PlayQueueEvent{Kind: kind, QueueID: q.ID, AudioFileID: audioFileID})
}

func (q *PlayQueue) AddItem(audioFileID int64) {
	q.Items = append(q.Items, audioFileID)
	if q.CurrentIndex == nil {
		zero := 0
		q.CurrentIndex = &zero
	}
	q.record(PlayQueueEventAdded, &audioFileID)
}

func (q *PlayQueue) RemoveItem(audioFileID int64) {
	pos := -1
	for i, item := range q.Items {
		if item == audioFileID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return
	}
	q.Items = append(q.Items[:pos], q.Items[pos+1:]...)
	if q.CurrentIndex != nil {
		ci := *q.CurrentIndex
		switch {
		case len(q.Items) == 0:
			q.CurrentIndex = nil
		case pos < ci:
			newCI := ci - 1
			if newCI < 0 {
				newCI = 0
			}
			q.CurrentIndex = &newCI
		case pos == ci:
			newCI := ci
			if newCI >= len(q.Items) {
				newCI = len(q.Items) - 1
			}
			q.CurrentIndex = &newCI
		}
	}
	q.record(PlayQueueEventRemoved, &audioFileID)
}

func (q *PlayQueue) Clear() {
	q.Items = nil
	q.CurrentIndex = nil
	q.record(PlayQueueEventCleared, nil)
}

// Reorder performs a semantic move: remove then insert. current_index is
// adjusted so the currently playing item keeps playing: moving an item from
// old to new across current_index shifts the current index by ±1. A no-op
// if old_index==new_index or new_index is out of range.
func (q *PlayQueue) Reorder(audioFileID int64, newIndex int) {
	oldIndex := -1
	for i, item := range q.Items {
		if item == audioFileID {
			oldIndex = i
			break
		}
	}
	if oldIndex < 0 {
		return
	}
	if oldIndex == newIndex || newIndex >= len(q.Items) {
		return
	}
	item := q.Items[oldIndex]
	q.Items = append(q.Items[:oldIndex], q.Items[oldIndex+1:]...)
	q.Items = append(q.Items[:newIndex], append([]int64{item}, q.Items[newIndex:]...)...)

	if q.CurrentIndex != nil {
		adjusted := adjustIndexAfterMove(*q.CurrentIndex, oldIndex, newIndex)
		q.CurrentIndex = &adjusted
	}
	q.record(PlayQueueEventReordered, nil)
}

// adjustIndexAfterMove follows the moved item when it is the current one
// (currentIndex == oldIndex yields newIndex); otherwise moving an item
// forward shrinks indices in (oldIndex, newIndex] and moving it backward
// grows indices in [newIndex, oldIndex).
func adjustIndexAfterMove(currentIndex, oldIndex, newIndex int) int {
	if currentIndex == oldIndex {
		return newIndex
	}
	if oldIndex < newIndex {
		if currentIndex > oldIndex && currentIndex <= newIndex {
			return currentIndex - 1
		}
	} else if newIndex < oldIndex {
		if currentIndex >= newIndex && currentIndex < oldIndex {
			return currentIndex + 1
		}
	}
	return currentIndex
}

func (q *PlayQueue) SetCurrentIndex(index *int) {
	if index == nil || *index >= len(q.Items) || *index < 0 {
		q.CurrentIndex = nil
		return
	}
	idx := *index
	q.CurrentIndex = &idx
}

// PlayQueueSnapshot is the read-oriented view the Player aggregate consumes.
type PlayQueueSnapshot struct {
	QueueID      int64
	Items        []int64
	Current      *int64
	Previous     *int64
	Next         *int64
	CurrentIndex *int
}

func (q *PlayQueue) Snapshot() PlayQueueSnapshot {
	s := PlayQueueSnapshot{QueueID: q.ID, Items: q.Items}
	if q.CurrentIndex != nil && *q.CurrentIndex < len(q.Items) {
		i := *q.CurrentIndex
		current := q.Items[i]
		s.Current = &current
		s.CurrentIndex = &i
		if i > 0 {
			prev := q.Items[i-1]
			s.Previous = &prev
		}
		if i+1 < len(q.Items) {
			next := q.Items[i+1]
			s.Next = &next
		}
	}
	return s
}

func (q *PlayQueue) TakeEvents() []PlayQueueEvent {
	e := q.PendingEvents
	q.PendingEvents = nil
	return e
}

type PlayQueueRepository interface {
	FindByID(id int64) (*PlayQueue, error)
	FindByUserID(userID int64) (*PlayQueue, error)
	Save(q *PlayQueue) error
	Delete(id int64) error
	DeleteByUserID(userID int64) error
}

func (q *PlayQueue) GetKey() int64 { return q.ID }

func (q *PlayQueue) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "user_id", Value: strconv.FormatInt(q.UserID, 10), Kind: memtable.IndexExact}}
}
