package entity

import "time"

// Player is the persisted view of one bound slot, keyed by session token.
type Player struct {
	SessionToken string    `json:"session_token"`
	RoomID       string    `json:"room_id"`
	Color        Color     `json:"color"`
	SessionID    string    `json:"session_id,omitempty"`
	Connected    bool      `json:"connected"`
	LastSeen     time.Time `json:"last_seen"`
}

func (that *Player) Ref() *PlayerRef {
	return &PlayerRef{
		SessionToken: that.SessionToken,
		SessionID:    that.SessionID,
		Connected:    that.Connected,
		LastSeenAt:   that.LastSeen,
	}
}
