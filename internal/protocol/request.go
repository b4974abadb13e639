package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

const (
	TypeCreateRoom = "createRoom"
	TypeJoinRoom   = "joinRoom"
	TypeLeaveRoom  = "leaveRoom"
	TypeRejoin     = "rejoin"
	TypeMove       = "move"
	TypePing       = "ping"
	TypeForfeit    = "forfeit"
)

const maxRoomNameLength = 64

var (
	ErrUnknownType   = fmt.Errorf("%w: unknown message type", apperror.ErrInvalidMessageFormat)
	ErrMissingField  = fmt.Errorf("%w: missing field", apperror.ErrInvalidMessageFormat)
	ErrInvalidField  = fmt.Errorf("%w: invalid field", apperror.ErrInvalidMessageFormat)
	errMalformedJSON = fmt.Errorf("%w: malformed json", apperror.ErrInvalidMessageFormat)
)

// Request is one decoded client message. The set of implementations is closed.
type Request interface {
	requestType() string
}

type CreateRoom struct {
	RoomName string `json:"roomName"`
}

type JoinRoom struct {
	// RoomID is a room id or a room name.
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type Rejoin struct {
	RoomID       string `json:"roomId"`
	SessionToken string `json:"sessionToken"`
}

type Move struct {
	From entity.Position `json:"from"`
	To   entity.Position `json:"to"`
}

type Ping struct{}

type Forfeit struct{}

func (CreateRoom) requestType() string { return TypeCreateRoom }
func (JoinRoom) requestType() string   { return TypeJoinRoom }
func (LeaveRoom) requestType() string  { return TypeLeaveRoom }
func (Rejoin) requestType() string     { return TypeRejoin }
func (Move) requestType() string       { return TypeMove }
func (Ping) requestType() string       { return TypePing }
func (Forfeit) requestType() string    { return TypeForfeit }

// Type returns the wire tag of r.
func Type(r Request) string {
	return r.requestType()
}

type envelope struct {
	Type string `json:"type"`
}

// moveFields keeps positions optional so a missing one can be told apart from {0,0}.
type moveFields struct {
	From *entity.Position `json:"from"`
	To   *entity.Position `json:"to"`
}

// Decode - parses one client frame. Every failure wraps apperror.ErrInvalidMessageFormat.
func Decode(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedJSON, err)
	}

	switch env.Type {
	case TypeCreateRoom:
		var req CreateRoom
		if err := decodeBody(data, &req); err != nil {
			return nil, err
		}

		req.RoomName = strings.TrimSpace(req.RoomName)
		if req.RoomName == "" {
			return nil, fmt.Errorf("%w: roomName", ErrMissingField)
		}

		if utf8.RuneCountInString(req.RoomName) > maxRoomNameLength {
			return nil, fmt.Errorf("%w: roomName longer than %d", ErrInvalidField, maxRoomNameLength)
		}

		return req, nil
	case TypeJoinRoom:
		var req JoinRoom
		if err := decodeBody(data, &req); err != nil {
			return nil, err
		}

		req.RoomID = strings.TrimSpace(req.RoomID)
		if req.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId", ErrMissingField)
		}

		return req, nil
	case TypeLeaveRoom:
		var req LeaveRoom
		if err := decodeBody(data, &req); err != nil {
			return nil, err
		}

		return req, nil
	case TypeRejoin:
		var req Rejoin
		if err := decodeBody(data, &req); err != nil {
			return nil, err
		}

		if req.RoomID == "" || req.SessionToken == "" {
			return nil, fmt.Errorf("%w: roomId and sessionToken", ErrMissingField)
		}

		return req, nil
	case TypeMove:
		var fields moveFields
		if err := decodeBody(data, &fields); err != nil {
			return nil, err
		}

		if fields.From == nil || fields.To == nil {
			return nil, fmt.Errorf("%w: from and to", ErrMissingField)
		}

		return Move{From: *fields.From, To: *fields.To}, nil
	case TypePing:
		return Ping{}, nil
	case TypeForfeit:
		return Forfeit{}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeBody(data []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	if err := decoder.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s", ErrInvalidField, typeErr.Field)
		}

		return fmt.Errorf("%w: %w", errMalformedJSON, err)
	}

	return nil
}
