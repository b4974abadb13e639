package apperror

import "errors"

var (
	ErrNameConflict         = errors.New("room name already exists")
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrSessionUnknown       = errors.New("session is unknown")
	ErrNotYourTurn          = errors.New("it's not your turn")
	ErrIllegalMove          = errors.New("illegal move")
	ErrGameOver             = errors.New("game is over")
	ErrGameIsNotStarted     = errors.New("game is not started")
	ErrInvalidMessageFormat = errors.New("invalid message format")
	ErrStorageFailure       = errors.New("storage failure")
)

const CodeInternal = "InternalError"

type description struct {
	err     error
	code    string
	message string
}

var descriptions = []description{
	{err: ErrNameConflict, code: "NameConflict", message: "Room name already exists"},
	{err: ErrRoomNotFound, code: "RoomNotFound", message: "Room not found"},
	{err: ErrRoomFull, code: "RoomFull", message: "Room is full"},
	{err: ErrSessionUnknown, code: "SessionUnknown", message: "Session is not bound to this room"},
	{err: ErrNotYourTurn, code: "NotYourTurn", message: "It's not your turn"},
	{err: ErrIllegalMove, code: "IllegalMove", message: "Illegal move"},
	{err: ErrGameOver, code: "GameOver", message: "Game is over"},
	{err: ErrGameIsNotStarted, code: "GameNotStarted", message: "Game is not started"},
	{err: ErrInvalidMessageFormat, code: "InvalidMessageFormat", message: "Invalid message format"},
	{err: ErrStorageFailure, code: "StorageFailure", message: "Storage is unavailable, try again"},
}

// Code returns the stable wire code for err.
func Code(err error) string {
	if d, ok := describe(err); ok {
		return d.code
	}

	return CodeInternal
}

// Message returns the client-facing text for err. Wrapped causes are never exposed.
func Message(err error) string {
	if d, ok := describe(err); ok {
		return d.message
	}

	return "Internal server error"
}

// IsDomain reports whether err belongs to the taxonomy, storage failures excluded.
func IsDomain(err error) bool {
	d, ok := describe(err)

	return ok && d.err != ErrStorageFailure //nolint: errorlint // comparing table entries
}

func describe(err error) (description, bool) {
	if err == nil {
		return description{}, false
	}

	for _, d := range descriptions {
		if errors.Is(err, d.err) {
			return d, true
		}
	}

	return description{}, false
}
