package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

var (
	// ErrRoomIDTaken is returned by CreateRoom when a generated id collides with a live room.
	ErrRoomIDTaken = errors.New("room id already taken")
	// ErrStaleWrite is returned when the stored record moved past the revision the writer read.
	ErrStaleWrite = fmt.Errorf("%w: record was changed by another writer", apperror.ErrStorageFailure)
)

// Store persists rooms, their players and game state.
//
// Reads always return the last committed write. Writes for one room are only issued
// from that room's actor, so implementations need atomicity but no caller-side locking.
// PutRoom, PutGameState and Commit are fenced: they apply only while the stored Revision
// equals the one the caller holds, then advance the caller's Revision. A writer whose
// lease ran out therefore gets ErrStaleWrite instead of overwriting a newer commit.
// Errors are apperror.ErrRoomNotFound, apperror.ErrNameConflict, ErrRoomIDTaken or
// wrap apperror.ErrStorageFailure.
type Store interface {
	// CreateRoom reserves the room name and writes room, players and initial state at once.
	CreateRoom(ctx context.Context, room *entity.Room, state *entity.GameState) error
	GetRoom(ctx context.Context, id string) (*entity.Room, error)
	GetRoomByName(ctx context.Context, name string) (*entity.Room, error)
	ListRooms(ctx context.Context) ([]*entity.Room, error)
	// PutRoom replaces the room record and its player records.
	PutRoom(ctx context.Context, room *entity.Room) error
	GetGameState(ctx context.Context, roomID string) (*entity.GameState, error)
	PutGameState(ctx context.Context, state *entity.GameState) error
	// Commit writes room and state in one transaction.
	Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error
	// DeleteRoom removes everything stored for the room. Deleting a missing room is not an error.
	DeleteRoom(ctx context.Context, id string) error
	// GetPlayer returns apperror.ErrSessionUnknown for a token bound to no slot.
	GetPlayer(ctx context.Context, sessionToken string) (*entity.Player, error)
	Close() error
}
