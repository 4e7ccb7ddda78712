package domain

import (
	"strconv"
	"time"

	"melodia/internal/apperr"
	"melodia/internal/memtable"
)

type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerPlaying
	PlayerPaused
	PlayerStopped
)

type PlaybackMode int

const (
	ModeSequential PlaybackMode = iota
	ModeRepeatOne
	ModeRepeatAll
	ModeShuffle
)

type PlayerEventKind int

const (
	PlayerEventPlayed PlayerEventKind = iota
	PlayerEventPaused
	PlayerEventResumed
	PlayerEventStopped
)

type PlayerEvent struct {
	Kind     PlayerEventKind
	PlayerID int64
	Vers     int64
	ItemID   *int64
}

func (e PlayerEvent) AggregateID() int64 { return e.PlayerID }
func (e PlayerEvent) Version() int64     { return e.Vers }

// Player tracks a logical playback client's state machine.
type Player struct {
	ID            int64
	UserID        int64
	State         PlayerState
	CurrentItem   *int64
	Mode          PlaybackMode
	LastOpTime    time.Time
	Version       int64
	PendingEvents []PlayerEvent
}

func NewPlayer(id, userID int64) *Player {
	return &Player{ID: id, UserID: userID, State: PlayerIdle, LastOpTime: time.Now().UTC()}
}

func (p *Player) touchOp(kind PlayerEventKind, itemID *int64) {
	p.Version++
	p.LastOpTime = time.Now().UTC()
	p.PendingEvents = append(p.PendingEvents, PlayerEvent{Kind: kind, PlayerID: p.ID, Vers: p.Version, ItemID: itemID})
}

// touchSeen updates LastOpTime without bumping version or recording an
// event — used for heartbeats, per spec.md §3 ("version bumps on every
// mutating op except heartbeat").
func (p *Player) touchSeen() {
	p.LastOpTime = time.Now().UTC()
}

// Heartbeat is the non-mutating liveness signal.
func (p *Player) Heartbeat() { p.touchSeen() }

// Play is valid from any state: it either transitions into Playing or seeks
// within the current item.
func (p *Player) Play(itemID int64) {
	p.State = PlayerPlaying
	p.CurrentItem = &itemID
	p.touchOp(PlayerEventPlayed, &itemID)
}

// Pause is only valid from Playing.
func (p *Player) Pause() error {
	if p.State != PlayerPlaying {
		return apperr.ConflictingState("pause is only valid while playing")
	}
	p.State = PlayerPaused
	p.touchOp(PlayerEventPaused, p.CurrentItem)
	return nil
}

// Resume is only valid from Paused.
func (p *Player) Resume() error {
	if p.State != PlayerPaused {
		return apperr.ConflictingState("resume is only valid while paused")
	}
	p.State = PlayerPlaying
	p.touchOp(PlayerEventResumed, p.CurrentItem)
	return nil
}

// Stop is idempotent from non-playing states.
func (p *Player) Stop() {
	if p.State == PlayerPlaying || p.State == PlayerPaused {
		p.State = PlayerStopped
		p.touchOp(PlayerEventStopped, p.CurrentItem)
		return
	}
	p.State = PlayerStopped
}

func (p *Player) TakeEvents() []PlayerEvent {
	e := p.PendingEvents
	p.PendingEvents = nil
	return e
}

// GetNextSong resolves the next item per playback mode.
func (p *Player) GetNextSong(snapshot PlayQueueSnapshot) *int64 {
	switch p.Mode {
	case ModeRepeatOne:
		return snapshot.Current
	case ModeSequential:
		return snapshot.Next
	case ModeRepeatAll:
		if snapshot.Next != nil {
			return snapshot.Next
		}
		if len(snapshot.Items) > 0 {
			first := snapshot.Items[0]
			return &first
		}
		return nil
	case ModeShuffle:
		return p.pickShuffle(snapshot)
	default:
		return snapshot.Next
	}
}

// GetPreviousSong resolves the previous item per playback mode.
func (p *Player) GetPreviousSong(snapshot PlayQueueSnapshot) *int64 {
	switch p.Mode {
	case ModeRepeatOne:
		return snapshot.Current
	case ModeSequential:
		return snapshot.Previous
	case ModeRepeatAll:
		if snapshot.Previous != nil {
			return snapshot.Previous
		}
		if len(snapshot.Items) > 0 {
			last := snapshot.Items[len(snapshot.Items)-1]
			return &last
		}
		return nil
	case ModeShuffle:
		return p.pickShuffle(snapshot)
	default:
		return snapshot.Previous
	}
}

// pickShuffle derives a deterministic pseudo-random pick from
// last_op_time + version: seed = (secs XOR (nanos << 32)) XOR version; index
// = seed % len. If the pick equals the current item and the queue has more
// than one element, it advances by one.
//
// The seed mixes wall-clock time and an in-memory counter rather than a
// dedicated PRNG: two players acting in the same second on the same version
// could pick the same next song. Flagged in the source as acceptable for
// casual shuffle, not redesigned here.
func (p *Player) pickShuffle(snapshot PlayQueueSnapshot) *int64 {
	n := len(snapshot.Items)
	if n == 0 {
		return nil
	}
	secs := p.LastOpTime.Unix()
	nanos := int64(p.LastOpTime.Nanosecond())
	seed := (secs ^ (nanos << 32)) ^ p.Version
	if seed < 0 {
		seed = -seed
	}
	idx := int(seed % int64(n))
	if snapshot.CurrentIndex != nil && idx == *snapshot.CurrentIndex && n > 1 {
		idx = (idx + 1) % n
	}
	pick := snapshot.Items[idx]
	return &pick
}

type PlayerRepository interface {
	FindByID(id int64) (*Player, error)
	FindByUserID(userID int64) (*Player, error)
	Save(p *Player) error
}

func (p *Player) GetKey() int64 { return p.ID }

func (p *Player) SecondaryIndexes() []memtable.IndexDescriptor {
	return []memtable.IndexDescriptor{{Name: "user_id", Value: strconv.FormatInt(p.UserID, 10), Kind: memtable.IndexExact}}
}
