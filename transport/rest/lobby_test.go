package rest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

type mockRooms struct {
	mock.Mock
}

func (that *mockRooms) ListRooms(ctx context.Context) ([]*entity.Room, error) {
	args := that.Called(ctx)
	rooms, _ := args.Get(0).([]*entity.Room)

	return rooms, args.Error(1)
}

func (that *mockRooms) FindRoom(ctx context.Context, identifier string) (*entity.Room, error) {
	args := that.Called(ctx, identifier)
	room, _ := args.Get(0).(*entity.Room)

	return room, args.Error(1)
}

func serve(t *testing.T, rooms roomFinder, target string) *httptest.ResponseRecorder {
	t.Helper()

	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), rooms)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestPing(t *testing.T) {
	rec := serve(t, &mockRooms{}, "/ping")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestLobby_ListRooms(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Lists active rooms", func(t *testing.T) {
		// Given: one playing room
		room := entity.NewRoom("ABCD1234", "Alpha", createdAt)
		room.Status = entity.StatusPlaying
		room.Red = &entity.PlayerRef{SessionToken: "r", Connected: true}
		room.Black = &entity.PlayerRef{SessionToken: "b"}

		rooms := &mockRooms{}
		rooms.On("ListRooms", mock.Anything).Return([]*entity.Room{room}, nil).Once()

		// When: the lobby is requested
		rec := serve(t, rooms, "/rooms")

		// Then: the room summary is returned
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"id":"ABCD1234","name":"Alpha","status":"playing","players":1,"createdAt":"2024-03-01T12:00:00Z"}]`, rec.Body.String())
		rooms.AssertExpectations(t)
	})

	t.Run("Empty lobby is an empty list", func(t *testing.T) {
		rooms := &mockRooms{}
		rooms.On("ListRooms", mock.Anything).Return(nil, nil).Once()

		rec := serve(t, rooms, "/rooms")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("Store failure", func(t *testing.T) {
		rooms := &mockRooms{}
		rooms.On("ListRooms", mock.Anything).Return(nil, fmt.Errorf("%w: timeout", apperror.ErrStorageFailure)).Once()

		rec := serve(t, rooms, "/rooms")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestLobby_GetRoom(t *testing.T) {
	t.Run("Found by identifier", func(t *testing.T) {
		// Given: a room reachable by its name
		room := entity.NewRoom("ABCD1234", "Alpha", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		rooms := &mockRooms{}
		rooms.On("FindRoom", mock.Anything, "Alpha").Return(room, nil).Once()

		// When: it is looked up
		rec := serve(t, rooms, "/rooms/Alpha")

		// Then: its summary is returned
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"ABCD1234","name":"Alpha","status":"waiting","players":0,"createdAt":"2024-03-01T12:00:00Z"}`, rec.Body.String())
	})

	t.Run("Missing room", func(t *testing.T) {
		rooms := &mockRooms{}
		rooms.On("FindRoom", mock.Anything, "nowhere").Return(nil, fmt.Errorf("lookup: %w", apperror.ErrRoomNotFound)).Once()

		rec := serve(t, rooms, "/rooms/nowhere")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Room not found"}`, rec.Body.String())
	})
}

func TestLobby_RoomExists(t *testing.T) {
	t.Run("Taken identifier", func(t *testing.T) {
		// Given: a room named Alpha
		room := entity.NewRoom("ABCD1234", "Alpha", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		rooms := &mockRooms{}
		rooms.On("FindRoom", mock.Anything, "Alpha").Return(room, nil).Once()

		// When: the name is checked
		rec := serve(t, rooms, "/rooms/Alpha/exists")

		// Then: it is reported as taken
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"exists":true}`, rec.Body.String())
		rooms.AssertExpectations(t)
	})

	t.Run("Free identifier", func(t *testing.T) {
		rooms := &mockRooms{}
		rooms.On("FindRoom", mock.Anything, "nowhere").Return(nil, apperror.ErrRoomNotFound).Once()

		rec := serve(t, rooms, "/rooms/nowhere/exists")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"exists":false}`, rec.Body.String())
	})

	t.Run("Store failure", func(t *testing.T) {
		rooms := &mockRooms{}
		rooms.On("FindRoom", mock.Anything, "Alpha").Return(nil, fmt.Errorf("%w: timeout", apperror.ErrStorageFailure)).Once()

		rec := serve(t, rooms, "/rooms/Alpha/exists")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
