package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameState(t *testing.T) {
	// Given: a fresh game state
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := NewGameState("ABCD1234", json.RawMessage(`[]`), now)

	// Then: red moves first and nothing was played
	expected := &GameState{
		RoomID:    "ABCD1234",
		Board:     json.RawMessage(`[]`),
		Turn:      ColorRed,
		UpdatedAt: now,
	}
	require.Equal(t, expected, state)
}

func TestGameState_Advance(t *testing.T) {
	// Given: a state where red is to move
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := NewGameState("ABCD1234", json.RawMessage(`"start"`), now)
	move := Move{From: Position{Row: 6, Col: 4}, To: Position{Row: 5, Col: 4}}

	// When: two moves are recorded
	state.Advance(move, json.RawMessage(`"one"`), now.Add(time.Second))
	require.Equal(t, ColorBlack, state.Turn)

	state.Advance(move, json.RawMessage(`"two"`), now.Add(2*time.Second))

	// Then: the turn alternates and the last move is kept
	assert.Equal(t, ColorRed, state.Turn)
	assert.Equal(t, &move, state.LastMove)
	assert.JSONEq(t, `"two"`, string(state.Board))
	assert.Equal(t, now.Add(2*time.Second), state.UpdatedAt)
}

func TestGameState_Clone(t *testing.T) {
	// Given: a state with a last move
	state := NewGameState("ABCD1234", json.RawMessage(`[1]`), time.Now())
	state.LastMove = &Move{From: Position{Row: 1}, To: Position{Row: 2}}

	// When: the clone is changed
	clone := state.Clone()
	clone.Board[1] = '2'
	clone.LastMove.To.Row = 9

	// Then: the original is untouched
	assert.JSONEq(t, `[1]`, string(state.Board))
	assert.Equal(t, 2, state.LastMove.To.Row)
}
