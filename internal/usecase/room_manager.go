package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/lease"
	"github.com/rocketscienceinc/xiangqi-backend/internal/pkg"
	"github.com/rocketscienceinc/xiangqi-backend/internal/protocol"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
)

// maxIDAttempts bounds retries when a generated room id collides with a live room.
const maxIDAttempts = 5

type roomRepo interface {
	CreateRoom(ctx context.Context, room *entity.Room, state *entity.GameState) error
	GetRoom(ctx context.Context, id string) (*entity.Room, error)
	GetRoomByName(ctx context.Context, name string) (*entity.Room, error)
	ListRooms(ctx context.Context) ([]*entity.Room, error)
	PutRoom(ctx context.Context, room *entity.Room) error
	GetGameState(ctx context.Context, roomID string) (*entity.GameState, error)
	PutGameState(ctx context.Context, state *entity.GameState) error
	Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error
	DeleteRoom(ctx context.Context, id string) error
	GetPlayer(ctx context.Context, sessionToken string) (*entity.Player, error)
}

type rules interface {
	InitialBoard() (json.RawMessage, error)
	ValidateMove(board json.RawMessage, from, to entity.Position, color entity.Color) (*entity.MoveOutcome, error)
}

type sessions interface {
	Bind(sessionID, roomID string, color entity.Color, token string) bool
	Unbind(sessionID string)
}

type notifier interface {
	NotifyRoom(ctx context.Context, roomID string, msg any, exclude string)
}

type Settings struct {
	// RejoinGrace is how long a disconnected slot stays reserved for its token.
	RejoinGrace time.Duration
	// IdleTimeout is how long a room may have no connected player before it is closed.
	IdleTimeout time.Duration
}

// Seat is a slot handed to a session by CreateRoom or JoinRoom.
type Seat struct {
	Room         *entity.Room
	Color        entity.Color
	SessionToken string
}

// Snapshot is what a rejoining session needs to restore its view.
type Snapshot struct {
	Room  *entity.Room
	Color entity.Color
	State *entity.GameState
}

type MoveResult struct {
	Room    *entity.Room
	State   *entity.GameState
	Outcome *entity.MoveOutcome
}

// GameOver reports whether the move ended the game.
func (that *MoveResult) GameOver() bool {
	return that.Outcome.GameOver
}

// RoomManager owns every room state transition. Operations on one room run inside
// the room's actor and under its lease, so they are applied one at a time.
type RoomManager struct {
	logger   *slog.Logger
	rooms    roomRepo
	locker   lease.Locker
	rules    rules
	sessions sessions
	notifier notifier
	settings Settings
	now      func() time.Time

	mu     sync.Mutex
	actors map[string]*roomActor
}

func NewRoomManager(
	logger *slog.Logger,
	rooms roomRepo,
	locker lease.Locker,
	rules rules,
	sessions sessions,
	notifier notifier,
	settings Settings,
) *RoomManager {
	return &RoomManager{
		logger: logger.With("component", "room_manager"),

		rooms:    rooms,
		locker:   locker,
		rules:    rules,
		sessions: sessions,
		notifier: notifier,
		settings: settings,
		now:      time.Now,

		actors: make(map[string]*roomActor),
	}
}

// CreateRoom - opens a new room with the caller in the red slot.
func (that *RoomManager) CreateRoom(ctx context.Context, sessionID, name string) (*Seat, error) {
	board, err := that.rules.InitialBoard()
	if err != nil {
		return nil, fmt.Errorf("failed to build initial board: %w", err)
	}

	for range maxIDAttempts {
		roomID := pkg.GenerateRoomID()

		var seat *Seat
		err = that.do(ctx, roomID, func(ctx context.Context) error {
			now := that.now()
			token := pkg.GenerateSessionToken()

			room := entity.NewRoom(roomID, name, now)
			room.Red = &entity.PlayerRef{
				SessionToken: token,
				SessionID:    sessionID,
				Connected:    true,
				LastSeenAt:   now,
			}

			if err := that.rooms.CreateRoom(ctx, room, entity.NewGameState(roomID, board, now)); err != nil {
				return err
			}

			that.sessions.Bind(sessionID, roomID, entity.ColorRed, token)
			seat = &Seat{Room: room, Color: entity.ColorRed, SessionToken: token}

			return nil
		})
		if errors.Is(err, repository.ErrRoomIDTaken) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		that.logger.Info("room created", "method", "CreateRoom", "roomID", roomID, "name", name, "sessionID", sessionID)

		return seat, nil
	}

	return nil, fmt.Errorf("%w: no free room id after %d attempts", apperror.ErrStorageFailure, maxIDAttempts)
}

// JoinRoom - seats the caller as black in a waiting room, found by id or by name.
func (that *RoomManager) JoinRoom(ctx context.Context, sessionID, identifier string) (*Seat, error) {
	found, err := that.FindRoom(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var seat *Seat
	err = that.do(ctx, found.ID, func(ctx context.Context) error {
		room, err := that.rooms.GetRoom(ctx, found.ID)
		if err != nil {
			return err
		}

		if room.IsFinished() {
			return apperror.ErrGameOver
		}

		if !room.IsWaiting() || room.Black != nil {
			return apperror.ErrRoomFull
		}

		if room.Red != nil && room.Red.SessionID == sessionID {
			return apperror.ErrRoomFull
		}

		now := that.now()
		token := pkg.GenerateSessionToken()

		room.Black = &entity.PlayerRef{
			SessionToken: token,
			SessionID:    sessionID,
			Connected:    true,
			LastSeenAt:   now,
		}
		room.Status = entity.StatusPlaying
		room.UpdatedAt = now
		room.MarkOccupancy(now)

		if err = that.rooms.PutRoom(ctx, room); err != nil {
			return err
		}

		that.sessions.Bind(sessionID, room.ID, entity.ColorBlack, token)
		that.notifier.NotifyRoom(ctx, room.ID, protocol.NewPlayerJoined(), sessionID)

		seat = &Seat{Room: room, Color: entity.ColorBlack, SessionToken: token}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	that.logger.Info("player joined", "method", "JoinRoom", "roomID", found.ID, "sessionID", sessionID)

	return seat, nil
}

// Rejoin - reattaches the caller to the slot bound to token. An empty roomID is
// resolved from the token.
func (that *RoomManager) Rejoin(ctx context.Context, sessionID, roomID, token string) (*Snapshot, error) {
	roomID = pkg.NormalizeRoomID(roomID)
	if roomID == "" {
		player, err := that.rooms.GetPlayer(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session token: %w", err)
		}

		roomID = player.RoomID
	}

	var snapshot *Snapshot
	err := that.do(ctx, roomID, func(ctx context.Context) error {
		room, err := that.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}

		color, ok := room.ColorOf(token)
		if !ok {
			return apperror.ErrSessionUnknown
		}

		state, err := that.rooms.GetGameState(ctx, roomID)
		if err != nil {
			return err
		}

		now := that.now()

		ref := room.Slot(color)
		ref.SessionID = sessionID
		ref.Connected = true
		ref.LastSeenAt = now
		room.UpdatedAt = now
		room.MarkOccupancy(now)

		if err = that.rooms.PutRoom(ctx, room); err != nil {
			return err
		}

		that.sessions.Bind(sessionID, roomID, color, token)
		snapshot = &Snapshot{Room: room, Color: color, State: state}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rejoin room: %w", err)
	}

	that.logger.Info("player rejoined", "method", "Rejoin", "roomID", roomID, "sessionID", sessionID, "color", snapshot.Color)

	return snapshot, nil
}

// Leave - marks the caller's slot disconnected and keeps it reserved for RejoinGrace.
// Leaving a room that is gone, or a slot already held by another session, does nothing.
func (that *RoomManager) Leave(ctx context.Context, sessionID, roomID, token string) error {
	left := false
	err := that.do(ctx, roomID, func(ctx context.Context) error {
		room, err := that.rooms.GetRoom(ctx, roomID)
		if errors.Is(err, apperror.ErrRoomNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		color, ok := room.ColorOf(token)
		if !ok {
			return nil
		}

		ref := room.Slot(color)
		if !ref.Connected || ref.SessionID != sessionID {
			return nil
		}

		now := that.now()

		ref.Connected = false
		ref.SessionID = ""
		ref.LastSeenAt = now
		room.UpdatedAt = now
		room.MarkOccupancy(now)

		if err = that.rooms.PutRoom(ctx, room); err != nil {
			return err
		}

		that.sessions.Unbind(sessionID)
		that.notifier.NotifyRoom(ctx, roomID, protocol.NewPlayerLeft(), sessionID)
		left = true

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	if left {
		that.logger.Info("player left", "method", "Leave", "roomID", roomID, "sessionID", sessionID)
	}

	return nil
}

// ApplyMove - validates and commits the caller's move. The opponent is sent the move,
// and on a capture of the general also the game result.
func (that *RoomManager) ApplyMove(ctx context.Context, sessionID, roomID, token string, move entity.Move) (*MoveResult, error) {
	var result *MoveResult
	err := that.do(ctx, roomID, func(ctx context.Context) error {
		room, color, err := that.seatedRoom(ctx, sessionID, roomID, token)
		if err != nil {
			return err
		}

		state, err := that.rooms.GetGameState(ctx, roomID)
		if err != nil {
			return err
		}

		if state.Turn != color {
			return apperror.ErrNotYourTurn
		}

		outcome, err := that.rules.ValidateMove(state.Board, move.From, move.To, color)
		if err != nil {
			return fmt.Errorf("failed to validate move: %w", err)
		}

		if !outcome.Legal {
			return apperror.ErrIllegalMove
		}

		now := that.now()
		state.Advance(move, outcome.Board, now)

		if outcome.GameOver {
			state.Winner = color
			room.Status = entity.StatusFinished
			room.UpdatedAt = now
			err = that.rooms.Commit(ctx, room, state)
		} else {
			err = that.rooms.PutGameState(ctx, state)
		}

		if err != nil {
			return err
		}

		that.notifier.NotifyRoom(ctx, roomID, protocol.NewMoveRelay(move), sessionID)
		if outcome.GameOver {
			that.notifier.NotifyRoom(ctx, roomID, protocol.NewGameOver(color, protocol.ReasonCapture), sessionID)
		}

		result = &MoveResult{Room: room, State: state, Outcome: outcome}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply move: %w", err)
	}

	if result.GameOver() {
		that.logger.Info("game finished", "method", "ApplyMove", "roomID", roomID, "winner", result.State.Winner)
	}

	return result, nil
}

// Forfeit - ends the caller's game in favour of the opponent.
func (that *RoomManager) Forfeit(ctx context.Context, sessionID, roomID, token string) (*entity.GameState, error) {
	var result *entity.GameState
	err := that.do(ctx, roomID, func(ctx context.Context) error {
		room, color, err := that.seatedRoom(ctx, sessionID, roomID, token)
		if err != nil {
			return err
		}

		state, err := that.rooms.GetGameState(ctx, roomID)
		if err != nil {
			return err
		}

		now := that.now()

		state.Winner = color.Opponent()
		state.UpdatedAt = now
		room.Status = entity.StatusFinished
		room.UpdatedAt = now

		if err = that.rooms.Commit(ctx, room, state); err != nil {
			return err
		}

		that.notifier.NotifyRoom(ctx, roomID, protocol.NewGameOver(state.Winner, protocol.ReasonForfeit), sessionID)
		result = state

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to forfeit: %w", err)
	}

	that.logger.Info("game forfeited", "method", "Forfeit", "roomID", roomID, "winner", result.Winner)

	return result, nil
}

// seatedRoom loads a room in which the session holds a slot of a running game.
func (that *RoomManager) seatedRoom(ctx context.Context, sessionID, roomID, token string) (*entity.Room, entity.Color, error) {
	room, err := that.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, "", err
	}

	color, ok := room.ColorOf(token)
	if !ok || room.Slot(color).SessionID != sessionID {
		return nil, "", apperror.ErrSessionUnknown
	}

	switch {
	case room.IsFinished():
		return nil, "", apperror.ErrGameOver
	case room.IsWaiting():
		return nil, "", apperror.ErrGameIsNotStarted
	}

	return room, color, nil
}

// FindRoom - looks a room up by id first, then by exact name.
func (that *RoomManager) FindRoom(ctx context.Context, identifier string) (*entity.Room, error) {
	room, err := that.rooms.GetRoom(ctx, pkg.NormalizeRoomID(identifier))
	if err == nil {
		return room, nil
	}

	if !errors.Is(err, apperror.ErrRoomNotFound) {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	room, err = that.rooms.GetRoomByName(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to get room by name: %w", err)
	}

	return room, nil
}

func (that *RoomManager) ListRooms(ctx context.Context) ([]*entity.Room, error) {
	rooms, err := that.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return rooms, nil
}
