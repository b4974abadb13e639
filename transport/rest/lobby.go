package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

type roomFinder interface {
	ListRooms(ctx context.Context) ([]*entity.Room, error)
	FindRoom(ctx context.Context, identifier string) (*entity.Room, error)
}

type roomResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    entity.RoomStatus `json:"status"`
	Players   int               `json:"players"`
	CreatedAt time.Time         `json:"createdAt"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRoomResponse(room *entity.Room) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Name:      room.Name,
		Status:    room.Status,
		Players:   room.Connected(),
		CreatedAt: room.CreatedAt,
	}
}

type Lobby struct {
	logger *slog.Logger
	rooms  roomFinder
}

func NewLobby(logger *slog.Logger, rooms roomFinder) *Lobby {
	return &Lobby{
		logger: logger.With("component", "lobby"),
		rooms:  rooms,
	}
}

func (that *Lobby) ListRooms(ctx echo.Context) error {
	rooms, err := that.rooms.ListRooms(ctx.Request().Context())
	if err != nil {
		that.logger.Error("failed to list rooms", "method", "ListRooms", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}

	response := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, newRoomResponse(room))
	}

	return ctx.JSON(http.StatusOK, response)
}

// GetRoom - looks a room up by id or name.
func (that *Lobby) GetRoom(ctx echo.Context) error {
	room, err := that.rooms.FindRoom(ctx.Request().Context(), ctx.Param("identifier"))
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "Room not found"})
	}

	if err != nil {
		that.logger.Error("failed to find room", "method", "GetRoom", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}

	return ctx.JSON(http.StatusOK, newRoomResponse(room))
}

// RoomExists - answers whether an id or name is taken, without the room itself.
func (that *Lobby) RoomExists(ctx echo.Context) error {
	_, err := that.rooms.FindRoom(ctx.Request().Context(), ctx.Param("identifier"))
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return ctx.JSON(http.StatusOK, existsResponse{Exists: false})
	}

	if err != nil {
		that.logger.Error("failed to find room", "method", "RoomExists", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}

	return ctx.JSON(http.StatusOK, existsResponse{Exists: true})
}
