package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

func TestRoomManager_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("Waiting room is closed once its creator's grace expires", func(t *testing.T) {
		// Given: a creator who left a waiting room
		env := newEnv(t)
		sessionID := env.open()
		red, err := env.manager.CreateRoom(ctx, sessionID, "Alpha")
		require.NoError(t, err)
		require.NoError(t, env.manager.Leave(ctx, sessionID, red.Room.ID, red.SessionToken))

		// When: the janitor runs inside the grace period
		env.clock.Advance(testSettings.RejoinGrace / 2)
		closed, err := env.manager.Sweep(ctx)

		// Then: the room survives
		require.NoError(t, err)
		assert.Zero(t, closed)

		// When: the grace period is over
		env.clock.Advance(testSettings.RejoinGrace)
		closed, err = env.manager.Sweep(ctx)

		// Then: the room is gone and its name is free again
		require.NoError(t, err)
		assert.Equal(t, 1, closed)

		_, err = env.manager.JoinRoom(ctx, env.open(), red.Room.ID)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = env.manager.Rejoin(ctx, env.open(), red.Room.ID, red.SessionToken)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)

		_, err = env.manager.CreateRoom(ctx, env.open(), "Alpha")
		require.NoError(t, err)
	})

	t.Run("Creator back within grace keeps the room", func(t *testing.T) {
		// Given: a creator who left and came back
		env := newEnv(t)
		sessionID := env.open()
		red, err := env.manager.CreateRoom(ctx, sessionID, "Alpha")
		require.NoError(t, err)
		require.NoError(t, env.manager.Leave(ctx, sessionID, red.Room.ID, red.SessionToken))

		env.clock.Advance(10 * time.Second)
		_, err = env.manager.Rejoin(ctx, env.open(), red.Room.ID, red.SessionToken)
		require.NoError(t, err)

		// When: the janitor runs much later
		env.clock.Advance(time.Hour)
		closed, err := env.manager.Sweep(ctx)

		// Then: the connected room is kept
		require.NoError(t, err)
		assert.Zero(t, closed)
	})

	t.Run("Expired slot is released but the game stays", func(t *testing.T) {
		// Given: a running game whose black player dropped
		env := newEnv(t)
		red, black, _, blackID := env.playing(t)
		require.NoError(t, env.manager.Leave(ctx, blackID, red.Room.ID, black.SessionToken))

		// When: the grace period passes
		env.clock.Advance(testSettings.RejoinGrace)
		closed, err := env.manager.Sweep(ctx)

		// Then: the black slot is empty and its token is dead
		require.NoError(t, err)
		assert.Zero(t, closed)

		room, err := env.store.GetRoom(ctx, red.Room.ID)
		require.NoError(t, err)
		assert.Nil(t, room.Black)
		assert.NotNil(t, room.Red)
		assert.Equal(t, entity.StatusPlaying, room.Status)

		_, err = env.manager.Rejoin(ctx, env.open(), red.Room.ID, black.SessionToken)
		require.ErrorIs(t, err, apperror.ErrSessionUnknown)
	})

	t.Run("Empty room is closed after the idle timeout", func(t *testing.T) {
		// Given: a running game both players left
		env := newEnv(t)
		red, black, redID, blackID := env.playing(t)
		require.NoError(t, env.manager.Leave(ctx, redID, red.Room.ID, red.SessionToken))
		require.NoError(t, env.manager.Leave(ctx, blackID, red.Room.ID, black.SessionToken))

		// When: only the grace period passed
		env.clock.Advance(testSettings.RejoinGrace)
		closed, err := env.manager.Sweep(ctx)

		// Then: the slots are released but the room is kept
		require.NoError(t, err)
		assert.Zero(t, closed)

		// When: the idle timeout passed as well
		env.clock.Advance(testSettings.IdleTimeout)
		closed, err = env.manager.Sweep(ctx)

		// Then: the room is disposed of
		require.NoError(t, err)
		assert.Equal(t, 1, closed)

		_, err = env.store.GetRoom(ctx, red.Room.ID)
		require.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

func TestRoomManager_RunJanitor(t *testing.T) {
	// Given: an abandoned waiting room past its grace
	env := newEnv(t)
	sessionID := env.open()
	red, err := env.manager.CreateRoom(context.Background(), sessionID, "Alpha")
	require.NoError(t, err)
	require.NoError(t, env.manager.Leave(context.Background(), sessionID, red.Room.ID, red.SessionToken))
	env.clock.Advance(time.Minute)

	// When: the janitor runs in the background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.manager.RunJanitor(ctx, 5*time.Millisecond)
	}()

	// Then: the room disappears and the janitor stops with its context
	assert.Eventually(t, func() bool {
		_, err := env.store.GetRoom(context.Background(), red.Room.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
