package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

const (
	TypeRoomCreated   = "roomCreated"
	TypeRoomJoined    = "roomJoined"
	TypeRejoined      = "rejoined"
	TypePlayerJoined  = "playerJoined"
	TypePlayerLeft    = "playerLeft"
	TypeMoveConfirmed = "moveConfirmed"
	TypeGameOver      = "gameOver"
	TypeError         = "error"
	TypePong          = "pong"
)

const (
	ReasonCapture = "capture"
	ReasonForfeit = "forfeit"
)

// SecondPlayerName is announced to the room creator when the second slot is taken.
const SecondPlayerName = "Player 2"

type RoomCreated struct {
	Type         string       `json:"type"`
	RoomID       string       `json:"roomId"`
	Color        entity.Color `json:"color"`
	RoomName     string       `json:"roomName"`
	SessionToken string       `json:"sessionToken"`
}

type RoomJoined struct {
	Type         string       `json:"type"`
	RoomID       string       `json:"roomId"`
	Color        entity.Color `json:"color"`
	OpponentName string       `json:"opponentName"`
	SessionToken string       `json:"sessionToken"`
}

type Rejoined struct {
	Type          string            `json:"type"`
	RoomID        string            `json:"roomId"`
	Color         entity.Color      `json:"color"`
	BoardSnapshot json.RawMessage   `json:"boardSnapshot"`
	Turn          entity.Color      `json:"turn"`
	Status        entity.RoomStatus `json:"status"`
	LastMove      *entity.Move      `json:"lastMove,omitempty"`
	Winner        entity.Color      `json:"winner,omitempty"`
}

type PlayerJoined struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
}

type PlayerLeft struct {
	Type string `json:"type"`
}

type MoveRelay struct {
	Type string          `json:"type"`
	From entity.Position `json:"from"`
	To   entity.Position `json:"to"`
}

type MoveConfirmed struct {
	Type          string          `json:"type"`
	From          entity.Position `json:"from"`
	To            entity.Position `json:"to"`
	CapturedPiece json.RawMessage `json:"capturedPiece,omitempty"`
}

type GameOver struct {
	Type   string       `json:"type"`
	Winner entity.Color `json:"winner"`
	Reason string       `json:"reason,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type Pong struct {
	Type string `json:"type"`
}

func NewRoomCreated(room *entity.Room, token string) RoomCreated {
	return RoomCreated{Type: TypeRoomCreated, RoomID: room.ID, Color: entity.ColorRed, RoomName: room.Name, SessionToken: token}
}

func NewRoomJoined(room *entity.Room, token string) RoomJoined {
	return RoomJoined{Type: TypeRoomJoined, RoomID: room.ID, Color: entity.ColorBlack, OpponentName: room.Name, SessionToken: token}
}

func NewRejoined(room *entity.Room, color entity.Color, state *entity.GameState) Rejoined {
	return Rejoined{
		Type:          TypeRejoined,
		RoomID:        room.ID,
		Color:         color,
		BoardSnapshot: state.Board,
		Turn:          state.Turn,
		Status:        room.Status,
		LastMove:      state.LastMove,
		Winner:        state.Winner,
	}
}

func NewPlayerJoined() PlayerJoined {
	return PlayerJoined{Type: TypePlayerJoined, PlayerName: SecondPlayerName}
}

func NewPlayerLeft() PlayerLeft {
	return PlayerLeft{Type: TypePlayerLeft}
}

func NewMoveRelay(move entity.Move) MoveRelay {
	return MoveRelay{Type: TypeMove, From: move.From, To: move.To}
}

func NewMoveConfirmed(move entity.Move, captured json.RawMessage) MoveConfirmed {
	return MoveConfirmed{Type: TypeMoveConfirmed, From: move.From, To: move.To, CapturedPiece: captured}
}

func NewGameOver(winner entity.Color, reason string) GameOver {
	return GameOver{Type: TypeGameOver, Winner: winner, Reason: reason}
}

// NewError - maps err onto its stable code and client-facing text.
func NewError(err error) Error {
	return Error{Type: TypeError, Message: apperror.Message(err), Code: apperror.Code(err)}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

// Encode - serialises a server message.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}
