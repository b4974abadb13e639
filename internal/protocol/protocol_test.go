package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("Valid requests", func(t *testing.T) {
		cases := []struct {
			name     string
			input    string
			expected Request
		}{
			{name: "createRoom", input: `{"type":"createRoom","roomName":"  Alpha "}`, expected: CreateRoom{RoomName: "Alpha"}},
			{name: "joinRoom", input: `{"type":"joinRoom","roomId":"ABCD1234"}`, expected: JoinRoom{RoomID: "ABCD1234"}},
			{name: "leaveRoom", input: `{"type":"leaveRoom","roomId":"ABCD1234"}`, expected: LeaveRoom{RoomID: "ABCD1234"}},
			{name: "rejoin", input: `{"type":"rejoin","roomId":"ABCD1234","sessionToken":"t"}`, expected: Rejoin{RoomID: "ABCD1234", SessionToken: "t"}},
			{
				name:     "move",
				input:    `{"type":"move","from":{"row":6,"col":4},"to":{"row":5,"col":4},"roomId":"ABCD1234"}`,
				expected: Move{From: entity.Position{Row: 6, Col: 4}, To: entity.Position{Row: 5, Col: 4}},
			},
			{name: "move from origin", input: `{"type":"move","from":{"row":0,"col":0},"to":{"row":1,"col":0}}`, expected: Move{To: entity.Position{Row: 1}}},
			{name: "ping", input: `{"type":"ping"}`, expected: Ping{}},
			{name: "forfeit", input: `{"type":"forfeit"}`, expected: Forfeit{}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				// When: the frame is decoded
				req, err := Decode([]byte(tc.input))

				// Then: the typed request comes back
				require.NoError(t, err)
				assert.Equal(t, tc.expected, req)
				assert.Equal(t, strings.Split(tc.name, " ")[0], Type(req))
			})
		}
	})

	t.Run("Invalid requests", func(t *testing.T) {
		cases := []struct {
			name     string
			input    string
			expected error
		}{
			{name: "not json", input: `hello`, expected: apperror.ErrInvalidMessageFormat},
			{name: "json array", input: `[1,2]`, expected: apperror.ErrInvalidMessageFormat},
			{name: "missing type", input: `{"roomName":"Alpha"}`, expected: ErrMissingField},
			{name: "unknown type", input: `{"type":"chat","text":"hi"}`, expected: ErrUnknownType},
			{name: "empty room name", input: `{"type":"createRoom","roomName":"   "}`, expected: ErrMissingField},
			{name: "long room name", input: fmt.Sprintf(`{"type":"createRoom","roomName":%q}`, strings.Repeat("x", 65)), expected: ErrInvalidField},
			{name: "join without id", input: `{"type":"joinRoom"}`, expected: ErrMissingField},
			{name: "rejoin without token", input: `{"type":"rejoin","roomId":"ABCD1234"}`, expected: ErrMissingField},
			{name: "move without to", input: `{"type":"move","from":{"row":6,"col":4}}`, expected: ErrMissingField},
			{name: "move with text row", input: `{"type":"move","from":{"row":"six","col":4},"to":{"row":5,"col":4}}`, expected: ErrInvalidField},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				// When: a bad frame is decoded
				req, err := Decode([]byte(tc.input))

				// Then: it is rejected as an invalid message, never panicking
				require.Error(t, err)
				assert.Nil(t, req)
				assert.ErrorIs(t, err, tc.expected)
				assert.ErrorIs(t, err, apperror.ErrInvalidMessageFormat)
				assert.Equal(t, "InvalidMessageFormat", apperror.Code(err))
			})
		}
	})
}

func TestEncode(t *testing.T) {
	room := entity.NewRoom("ABCD1234", "Alpha", zeroTime())
	move := entity.Move{From: entity.Position{Row: 6, Col: 4}, To: entity.Position{Row: 5, Col: 4}}

	cases := []struct {
		name     string
		msg      any
		expected string
	}{
		{
			name:     "roomCreated",
			msg:      NewRoomCreated(room, "token"),
			expected: `{"type":"roomCreated","roomId":"ABCD1234","color":"red","roomName":"Alpha","sessionToken":"token"}`,
		},
		{
			name:     "roomJoined",
			msg:      NewRoomJoined(room, "token"),
			expected: `{"type":"roomJoined","roomId":"ABCD1234","color":"black","opponentName":"Alpha","sessionToken":"token"}`,
		},
		{
			name:     "playerJoined",
			msg:      NewPlayerJoined(),
			expected: `{"type":"playerJoined","playerName":"Player 2"}`,
		},
		{
			name:     "playerLeft",
			msg:      NewPlayerLeft(),
			expected: `{"type":"playerLeft"}`,
		},
		{
			name:     "move",
			msg:      NewMoveRelay(move),
			expected: `{"type":"move","from":{"row":6,"col":4},"to":{"row":5,"col":4}}`,
		},
		{
			name:     "moveConfirmed",
			msg:      NewMoveConfirmed(move, nil),
			expected: `{"type":"moveConfirmed","from":{"row":6,"col":4},"to":{"row":5,"col":4}}`,
		},
		{
			name:     "gameOver",
			msg:      NewGameOver(entity.ColorRed, ReasonCapture),
			expected: `{"type":"gameOver","winner":"red","reason":"capture"}`,
		},
		{
			name:     "error",
			msg:      NewError(fmt.Errorf("join: %w", apperror.ErrRoomFull)),
			expected: `{"type":"error","message":"Room is full","code":"RoomFull"}`,
		},
		{
			name:     "internal error",
			msg:      NewError(errors.New("nil pointer")),
			expected: `{"type":"error","message":"Internal server error","code":"InternalError"}`,
		},
		{
			name:     "pong",
			msg:      NewPong(),
			expected: `{"type":"pong"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.msg)

			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(data))
		})
	}
}

func TestNewRejoined(t *testing.T) {
	// Given: a playing room where black is to move
	room := entity.NewRoom("ABCD1234", "Alpha", zeroTime())
	room.Status = entity.StatusPlaying
	state := entity.NewGameState(room.ID, json.RawMessage(`[[null]]`), zeroTime())
	state.Turn = entity.ColorBlack

	// When: black rejoins
	data, err := Encode(NewRejoined(room, entity.ColorBlack, state))

	// Then: the snapshot carries the board and turn
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"rejoined","roomId":"ABCD1234","color":"black",
		"boardSnapshot":[[null]],"turn":"black","status":"playing"
	}`, string(data))
}

func zeroTime() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}
