package entity

import (
	"time"
)

type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
)

// Opponent returns the other side. Red moves first.
func (that Color) Opponent() Color {
	if that == ColorRed {
		return ColorBlack
	}

	return ColorRed
}

func (that Color) Valid() bool {
	return that == ColorRed || that == ColorBlack
}

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
	StatusClosed   RoomStatus = "closed"
)

// PlayerRef binds a slot to a client-held session token.
// SessionID is the live connection currently holding the slot, empty while disconnected.
type PlayerRef struct {
	SessionToken string    `json:"session_token"`
	SessionID    string    `json:"session_id,omitempty"`
	Connected    bool      `json:"connected"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// Room is one two-seat table. Revision is advanced by the store on every write.
type Room struct {
	ID         string     `json:"id"`
	Revision   int64      `json:"revision"`
	Name       string     `json:"name"`
	Status     RoomStatus `json:"status"`
	Red        *PlayerRef `json:"red,omitempty"`
	Black      *PlayerRef `json:"black,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	EmptySince *time.Time `json:"empty_since,omitempty"`
}

func NewRoom(id, name string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (that *Room) Slot(color Color) *PlayerRef {
	if color == ColorRed {
		return that.Red
	}

	return that.Black
}

func (that *Room) SetSlot(color Color, ref *PlayerRef) {
	if color == ColorRed {
		that.Red = ref
		return
	}

	that.Black = ref
}

// ColorOf finds the slot bound to token.
func (that *Room) ColorOf(token string) (Color, bool) {
	if token == "" {
		return "", false
	}

	for _, color := range []Color{ColorRed, ColorBlack} {
		if ref := that.Slot(color); ref != nil && ref.SessionToken == token {
			return color, true
		}
	}

	return "", false
}

// Connected counts slots with a live session.
func (that *Room) Connected() int {
	count := 0
	for _, ref := range []*PlayerRef{that.Red, that.Black} {
		if ref != nil && ref.Connected {
			count++
		}
	}

	return count
}

// MarkOccupancy keeps EmptySince in step with the connected slots.
func (that *Room) MarkOccupancy(now time.Time) {
	if that.Connected() > 0 {
		that.EmptySince = nil
		return
	}

	if that.EmptySince == nil {
		emptySince := now
		that.EmptySince = &emptySince
	}
}

// IdleFor reports whether the room has had no connected slot for at least timeout.
func (that *Room) IdleFor(now time.Time, timeout time.Duration) bool {
	return that.EmptySince != nil && now.Sub(*that.EmptySince) >= timeout
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

// Players flattens the bound slots into player records.
func (that *Room) Players() []*Player {
	players := make([]*Player, 0, 2)
	for _, color := range []Color{ColorRed, ColorBlack} {
		ref := that.Slot(color)
		if ref == nil {
			continue
		}

		players = append(players, &Player{
			SessionToken: ref.SessionToken,
			RoomID:       that.ID,
			Color:        color,
			SessionID:    ref.SessionID,
			Connected:    ref.Connected,
			LastSeen:     ref.LastSeenAt,
		})
	}

	return players
}

// Clone returns a deep copy, so stores never share pointers with callers.
func (that *Room) Clone() *Room {
	if that == nil {
		return nil
	}

	clone := *that
	if that.Red != nil {
		red := *that.Red
		clone.Red = &red
	}

	if that.Black != nil {
		black := *that.Black
		clone.Black = &black
	}

	if that.EmptySince != nil {
		emptySince := *that.EmptySince
		clone.EmptySince = &emptySince
	}

	return &clone
}
