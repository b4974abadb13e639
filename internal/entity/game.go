package entity

import (
	"encoding/json"
	"time"
)

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Move struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

// GameState is the authoritative state of one room's game. Board is opaque here,
// only the rule collaborator understands it. Revision is advanced by the store on every write.
type GameState struct {
	RoomID    string          `json:"room_id"`
	Revision  int64           `json:"revision"`
	Board     json.RawMessage `json:"board"`
	Turn      Color           `json:"turn"`
	LastMove  *Move           `json:"last_move,omitempty"`
	Winner    Color           `json:"winner,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewGameState(roomID string, board json.RawMessage, now time.Time) *GameState {
	return &GameState{
		RoomID:    roomID,
		Board:     board,
		Turn:      ColorRed,
		UpdatedAt: now,
	}
}

// Advance records an accepted move and hands the turn over.
func (that *GameState) Advance(move Move, board json.RawMessage, now time.Time) {
	that.Board = board
	that.LastMove = &move
	that.Turn = that.Turn.Opponent()
	that.UpdatedAt = now
}

func (that *GameState) Clone() *GameState {
	if that == nil {
		return nil
	}

	clone := *that
	clone.Board = append(json.RawMessage(nil), that.Board...)
	if that.LastMove != nil {
		lastMove := *that.LastMove
		clone.LastMove = &lastMove
	}

	return &clone
}

// MoveOutcome is the verdict of the rule collaborator.
type MoveOutcome struct {
	Legal    bool            `json:"legal"`
	Board    json.RawMessage `json:"board,omitempty"`
	Captured json.RawMessage `json:"captured,omitempty"`
	GameOver bool            `json:"game_over"`
}
