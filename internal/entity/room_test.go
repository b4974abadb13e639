package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColor_Opponent(t *testing.T) {
	assert.Equal(t, ColorBlack, ColorRed.Opponent())
	assert.Equal(t, ColorRed, ColorBlack.Opponent())
	assert.False(t, Color("green").Valid())
}

func TestRoom_ColorOf(t *testing.T) {
	// Given: a room with both slots bound
	room := NewRoom("ABCD1234", "Alpha", time.Now())
	room.Red = &PlayerRef{SessionToken: "red-token"}
	room.Black = &PlayerRef{SessionToken: "black-token"}

	t.Run("Known tokens", func(t *testing.T) {
		color, ok := room.ColorOf("black-token")
		require.True(t, ok)
		assert.Equal(t, ColorBlack, color)

		color, ok = room.ColorOf("red-token")
		require.True(t, ok)
		assert.Equal(t, ColorRed, color)
	})

	t.Run("Unknown or empty token", func(t *testing.T) {
		_, ok := room.ColorOf("other")
		assert.False(t, ok)

		_, ok = room.ColorOf("")
		assert.False(t, ok)
	})
}

func TestRoom_MarkOccupancy(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Given: a room whose only player disconnects
	room := NewRoom("ABCD1234", "Alpha", now)
	room.Red = &PlayerRef{SessionToken: "red-token", Connected: false}

	// When: occupancy is marked twice
	room.MarkOccupancy(now)
	room.MarkOccupancy(now.Add(time.Minute))

	// Then: the first empty instant is kept
	require.NotNil(t, room.EmptySince)
	assert.Equal(t, now, *room.EmptySince)
	assert.False(t, room.IdleFor(now.Add(4*time.Minute), 5*time.Minute))
	assert.True(t, room.IdleFor(now.Add(5*time.Minute), 5*time.Minute))

	// When: the player comes back
	room.Red.Connected = true
	room.MarkOccupancy(now.Add(6 * time.Minute))

	// Then: the room is no longer empty
	assert.Nil(t, room.EmptySince)
	assert.False(t, room.IdleFor(now.Add(time.Hour), 5*time.Minute))
}

func TestRoom_Clone(t *testing.T) {
	// Given: a room with a slot
	room := NewRoom("ABCD1234", "Alpha", time.Now())
	room.Red = &PlayerRef{SessionToken: "red-token", Connected: true}

	// When: the clone's slot changes
	clone := room.Clone()
	clone.Red.Connected = false
	clone.Black = &PlayerRef{SessionToken: "black-token"}

	// Then: the original is untouched
	assert.True(t, room.Red.Connected)
	assert.Nil(t, room.Black)
}

func TestRoom_Players(t *testing.T) {
	// Given: a room with only black bound
	room := NewRoom("ABCD1234", "Alpha", time.Now())
	room.Black = &PlayerRef{SessionToken: "black-token", SessionID: "s-2", Connected: true}

	// When: players are listed
	players := room.Players()

	// Then: one record carries the slot's color
	require.Len(t, players, 1)
	assert.Equal(t, ColorBlack, players[0].Color)
	assert.Equal(t, "ABCD1234", players[0].RoomID)
	assert.Equal(t, room.Black, players[0].Ref())
}
