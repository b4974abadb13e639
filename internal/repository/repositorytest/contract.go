// Package repositorytest holds the behaviour every repository.Store must share.
package repositorytest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) (context.Context, repository.Store)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func NewRoom(id, name string) (*entity.Room, *entity.GameState) {
	room := entity.NewRoom(id, name, epoch)
	room.Red = &entity.PlayerRef{
		SessionToken: "token-" + id + "-red",
		SessionID:    "session-" + id + "-red",
		Connected:    true,
		LastSeenAt:   epoch,
	}

	state := entity.NewGameState(id, json.RawMessage(`{"cells":[1,2,3]}`), epoch)

	return room, state
}

func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("CreateRoom_Success", func(t *testing.T) {
		ctx, store := factory(t)

		// Given: a new room with red bound
		room, state := NewRoom("ROOM0001", "Alpha")

		// When: it is created
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// Then: it is addressable by id and by name
		byID, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assertRoom(t, room, byID)

		byName, err := store.GetRoomByName(ctx, "Alpha")
		require.NoError(t, err)
		assert.Equal(t, room.ID, byName.ID)

		// Then: the initial state and the player record exist
		storedState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ColorRed, storedState.Turn)
		assert.JSONEq(t, string(state.Board), string(storedState.Board))

		player, err := store.GetPlayer(ctx, room.Red.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, room.ID, player.RoomID)
		assert.Equal(t, entity.ColorRed, player.Color)
		assert.True(t, player.Connected)
	})

	t.Run("CreateRoom_NameConflict", func(t *testing.T) {
		ctx, store := factory(t)

		// Given: a room named Alpha
		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// When: another room takes the same name
		other, otherState := NewRoom("ROOM0002", "Alpha")
		err := store.CreateRoom(ctx, other, otherState)

		// Then: the name is refused and nothing of the second room is stored
		require.ErrorIs(t, err, apperror.ErrNameConflict)

		_, err = store.GetRoom(ctx, other.ID)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("CreateRoom_IDTaken", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// When: a different name reuses the id
		other, otherState := NewRoom("ROOM0001", "Beta")
		err := store.CreateRoom(ctx, other, otherState)

		// Then: the id collision is reported and the name stays free
		require.ErrorIs(t, err, repository.ErrRoomIDTaken)

		_, err = store.GetRoomByName(ctx, "Beta")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("CreateRoom_FailedCreateFreesName", func(t *testing.T) {
		ctx, store := factory(t)

		// Given: a create that failed on an id collision
		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		other, otherState := NewRoom("ROOM0001", "Beta")
		require.ErrorIs(t, store.CreateRoom(ctx, other, otherState), repository.ErrRoomIDTaken)

		// When: the name is tried again under a fresh id
		retry, retryState := NewRoom("ROOM0002", "Beta")
		require.NoError(t, store.CreateRoom(ctx, retry, retryState))

		// Then: the name resolves to the room that was actually written
		byName, err := store.GetRoomByName(ctx, "Beta")
		require.NoError(t, err)
		assert.Equal(t, "ROOM0002", byName.ID)
	})

	t.Run("GetRoom_NotFound", func(t *testing.T) {
		ctx, store := factory(t)

		_, err := store.GetRoom(ctx, "MISSING0")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = store.GetRoomByName(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = store.GetGameState(ctx, "MISSING0")
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = store.GetPlayer(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrSessionUnknown)
	})

	t.Run("PutRoom_ReplacesSlots", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// Given: black joins and red disconnects
		room.Black = &entity.PlayerRef{
			SessionToken: "token-black",
			SessionID:    "session-black",
			Connected:    true,
			LastSeenAt:   epoch.Add(time.Minute),
		}
		room.Status = entity.StatusPlaying
		room.Red.Connected = false
		room.Red.SessionID = ""
		room.UpdatedAt = epoch.Add(time.Minute)

		// When: the room is written
		require.NoError(t, store.PutRoom(ctx, room))

		// Then: the stored room reflects both slots
		stored, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assertRoom(t, room, stored)

		black, err := store.GetPlayer(ctx, "token-black")
		require.NoError(t, err)
		assert.Equal(t, entity.ColorBlack, black.Color)

		// When: the red slot is released
		releasedToken := room.Red.SessionToken
		room.Red = nil
		emptySince := epoch.Add(2 * time.Minute)
		room.EmptySince = &emptySince
		require.NoError(t, store.PutRoom(ctx, room))

		// Then: the released token is unbound
		_, err = store.GetPlayer(ctx, releasedToken)
		require.ErrorIs(t, err, apperror.ErrSessionUnknown)

		stored, err = store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.Red)
		require.NotNil(t, stored.EmptySince)
		assert.True(t, emptySince.Equal(*stored.EmptySince))
	})

	t.Run("PutRoom_NotFound", func(t *testing.T) {
		ctx, store := factory(t)

		room, _ := NewRoom("ROOM0001", "Alpha")
		require.ErrorIs(t, store.PutRoom(ctx, room), apperror.ErrRoomNotFound)
	})

	t.Run("Commit_WritesRoomAndState", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// Given: a finished game
		move := entity.Move{From: entity.Position{Row: 0, Col: 0}, To: entity.Position{Row: 0, Col: 4}}
		state.Advance(move, json.RawMessage(`{"cells":[3,2,1]}`), epoch.Add(time.Minute))
		state.Winner = entity.ColorRed
		room.Status = entity.StatusFinished

		// When: both are committed
		require.NoError(t, store.Commit(ctx, room, state))

		// Then: both are visible
		storedRoom, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusFinished, storedRoom.Status)

		storedState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ColorBlack, storedState.Turn)
		assert.Equal(t, entity.ColorRed, storedState.Winner)
		require.NotNil(t, storedState.LastMove)
		assert.Equal(t, move, *storedState.LastMove)
		assert.JSONEq(t, `{"cells":[3,2,1]}`, string(storedState.Board))
	})

	t.Run("PutGameState", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		state.Turn = entity.ColorBlack
		require.NoError(t, store.PutGameState(ctx, state))

		stored, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ColorBlack, stored.Turn)
	})

	t.Run("Writes_AdvanceRevision", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// When: the room and the state are written
		require.NoError(t, store.PutRoom(ctx, room))
		require.NoError(t, store.PutGameState(ctx, state))
		require.NoError(t, store.Commit(ctx, room, state))

		// Then: the caller and the store agree on the new revisions
		assert.Equal(t, int64(2), room.Revision)
		assert.Equal(t, int64(2), state.Revision)

		storedRoom, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.Revision, storedRoom.Revision)

		storedState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, state.Revision, storedState.Revision)
	})

	t.Run("Writes_RejectStaleRevision", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// Given: two writers that read the same revision
		staleRoom, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		staleState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)

		freshRoom, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		freshState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)

		// When: one of them commits first
		move := entity.Move{From: entity.Position{Row: 6, Col: 0}, To: entity.Position{Row: 5, Col: 0}}
		freshState.Advance(move, json.RawMessage(`{"cells":[9]}`), epoch.Add(time.Minute))
		freshRoom.Status = entity.StatusPlaying
		require.NoError(t, store.Commit(ctx, freshRoom, freshState))

		// Then: every write of the other one is refused
		staleState.Advance(move, json.RawMessage(`{"cells":[0]}`), epoch.Add(2*time.Minute))
		staleRoom.Status = entity.StatusFinished

		err = store.PutGameState(ctx, staleState)
		require.ErrorIs(t, err, repository.ErrStaleWrite)
		require.ErrorIs(t, err, apperror.ErrStorageFailure)

		require.ErrorIs(t, store.PutRoom(ctx, staleRoom), repository.ErrStaleWrite)
		require.ErrorIs(t, store.Commit(ctx, staleRoom, staleState), repository.ErrStaleWrite)

		// Then: the first commit is what is stored
		storedRoom, err := store.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPlaying, storedRoom.Status)

		storedState, err := store.GetGameState(ctx, room.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"cells":[9]}`, string(storedState.Board))
	})

	t.Run("DeleteRoom", func(t *testing.T) {
		ctx, store := factory(t)

		room, state := NewRoom("ROOM0001", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, room, state))

		// When: the room is deleted twice
		require.NoError(t, store.DeleteRoom(ctx, room.ID))
		require.NoError(t, store.DeleteRoom(ctx, room.ID))

		// Then: nothing is addressable and the name is free again
		_, err := store.GetRoom(ctx, room.ID)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = store.GetGameState(ctx, room.ID)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = store.GetPlayer(ctx, room.Red.SessionToken)
		require.ErrorIs(t, err, apperror.ErrSessionUnknown)

		again, againState := NewRoom("ROOM0002", "Alpha")
		require.NoError(t, store.CreateRoom(ctx, again, againState))
	})

	t.Run("ListRooms", func(t *testing.T) {
		ctx, store := factory(t)

		for i := range 3 {
			room, state := NewRoom(fmt.Sprintf("ROOM000%d", i), fmt.Sprintf("Room %d", i))
			require.NoError(t, store.CreateRoom(ctx, room, state))
		}

		rooms, err := store.ListRooms(ctx)
		require.NoError(t, err)
		assert.Len(t, rooms, 3)
	})
}

func assertRoom(t *testing.T, expected, actual *entity.Room) {
	t.Helper()

	assert.Equal(t, expected.ID, actual.ID)
	assert.Equal(t, expected.Name, actual.Name)
	assert.Equal(t, expected.Status, actual.Status)
	assert.True(t, expected.CreatedAt.Equal(actual.CreatedAt), "created at")
	assertRef(t, expected.Red, actual.Red)
	assertRef(t, expected.Black, actual.Black)
}

func assertRef(t *testing.T, expected, actual *entity.PlayerRef) {
	t.Helper()

	if expected == nil {
		assert.Nil(t, actual)
		return
	}

	require.NotNil(t, actual)
	assert.Equal(t, expected.SessionToken, actual.SessionToken)
	assert.Equal(t, expected.SessionID, actual.SessionID)
	assert.Equal(t, expected.Connected, actual.Connected)
	assert.True(t, expected.LastSeenAt.Equal(actual.LastSeenAt), "last seen")
}
