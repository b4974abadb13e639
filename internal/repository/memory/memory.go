package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
)

// Storage keeps everything in process memory. It is only consistent inside one process.
type Storage struct {
	mu      sync.RWMutex
	rooms   map[string]*entity.Room
	names   map[string]string
	states  map[string]*entity.GameState
	players map[string]*entity.Player
}

func New() *Storage {
	return &Storage{
		rooms:   make(map[string]*entity.Room),
		names:   make(map[string]string),
		states:  make(map[string]*entity.GameState),
		players: make(map[string]*entity.Player),
	}
}

func (that *Storage) CreateRoom(_ context.Context, room *entity.Room, state *entity.GameState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.names[room.Name]; ok {
		return apperror.ErrNameConflict
	}

	if _, ok := that.rooms[room.ID]; ok {
		return repository.ErrRoomIDTaken
	}

	that.names[room.Name] = room.ID
	that.putRoom(room)
	that.states[room.ID] = state.Clone()

	return nil
}

func (that *Storage) GetRoom(_ context.Context, id string) (*entity.Room, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	room, ok := that.rooms[id]
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	return room.Clone(), nil
}

func (that *Storage) GetRoomByName(ctx context.Context, name string) (*entity.Room, error) {
	that.mu.RLock()
	id, ok := that.names[name]
	that.mu.RUnlock()

	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	return that.GetRoom(ctx, id)
}

func (that *Storage) ListRooms(_ context.Context) ([]*entity.Room, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	rooms := make([]*entity.Room, 0, len(that.rooms))
	for _, room := range that.rooms {
		rooms = append(rooms, room.Clone())
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})

	return rooms, nil
}

func (that *Storage) PutRoom(_ context.Context, room *entity.Room) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.checkRoom(room); err != nil {
		return err
	}

	room.Revision++
	that.putRoom(room)

	return nil
}

func (that *Storage) GetGameState(_ context.Context, roomID string) (*entity.GameState, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	state, ok := that.states[roomID]
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	return state.Clone(), nil
}

func (that *Storage) PutGameState(_ context.Context, state *entity.GameState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.checkState(state); err != nil {
		return err
	}

	state.Revision++
	that.states[state.RoomID] = state.Clone()

	return nil
}

func (that *Storage) Commit(_ context.Context, room *entity.Room, state *entity.GameState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.checkRoom(room); err != nil {
		return err
	}

	if state != nil {
		if err := that.checkState(state); err != nil {
			return err
		}

		state.Revision++
		that.states[room.ID] = state.Clone()
	}

	room.Revision++
	that.putRoom(room)

	return nil
}

func (that *Storage) DeleteRoom(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[id]
	if !ok {
		return nil
	}

	that.dropPlayers(id)
	delete(that.names, room.Name)
	delete(that.states, id)
	delete(that.rooms, id)

	return nil
}

func (that *Storage) GetPlayer(_ context.Context, sessionToken string) (*entity.Player, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	player, ok := that.players[sessionToken]
	if !ok {
		return nil, apperror.ErrSessionUnknown
	}

	clone := *player

	return &clone, nil
}

func (that *Storage) Close() error {
	return nil
}

// checkRoom and checkState must be called with the write lock held.
func (that *Storage) checkRoom(room *entity.Room) error {
	stored, ok := that.rooms[room.ID]
	if !ok {
		return apperror.ErrRoomNotFound
	}

	if stored.Revision != room.Revision {
		return repository.ErrStaleWrite
	}

	return nil
}

func (that *Storage) checkState(state *entity.GameState) error {
	stored, ok := that.states[state.RoomID]
	if !ok {
		return apperror.ErrRoomNotFound
	}

	if stored.Revision != state.Revision {
		return repository.ErrStaleWrite
	}

	return nil
}

// putRoom must be called with the write lock held.
func (that *Storage) putRoom(room *entity.Room) {
	that.rooms[room.ID] = room.Clone()

	that.dropPlayers(room.ID)
	for _, player := range room.Players() {
		that.players[player.SessionToken] = player
	}
}

func (that *Storage) dropPlayers(roomID string) {
	for token, player := range that.players {
		if player.RoomID == roomID {
			delete(that.players, token)
		}
	}
}
