package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
)

const roomsKey = "rooms"

func roomKey(id string) string {
	return "room:" + id
}

func nameKey(name string) string {
	return "roomname:" + name
}

func gameKey(roomID string) string {
	return "game:" + roomID
}

func playerKey(token string) string {
	return "player:" + token
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Storage struct {
	client *redis.Client
}

func New(client *redis.Client) *Storage {
	return &Storage{
		client: client,
	}
}

// createAttempts bounds the WATCH retries when a concurrent create touches the same keys.
const createAttempts = 3

// CreateRoom - checks name and id under WATCH and writes everything, name included, in one MULTI.
func (that *Storage) CreateRoom(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	roomJSON, stateJSON, err := marshalPair(room, state)
	if err != nil {
		return err
	}

	create := func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, nameKey(room.Name)).Result()
		if err != nil {
			return failure("failed to check room name", err)
		}

		if taken > 0 {
			return apperror.ErrNameConflict
		}

		taken, err = tx.Exists(ctx, roomKey(room.ID)).Result()
		if err != nil {
			return failure("failed to check room id", err)
		}

		if taken > 0 {
			return repository.ErrRoomIDTaken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, nameKey(room.Name), room.ID, 0)
			pipe.Set(ctx, roomKey(room.ID), roomJSON, 0)
			pipe.Set(ctx, gameKey(room.ID), stateJSON, 0)
			pipe.SAdd(ctx, roomsKey, room.ID)

			return setPlayers(ctx, pipe, room)
		})

		return err
	}

	for range createAttempts {
		err = that.client.Watch(ctx, create, nameKey(room.Name), roomKey(room.ID))
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	return mapError("failed to create room", err)
}

func (that *Storage) GetRoom(ctx context.Context, id string) (*entity.Room, error) {
	return getRoom(ctx, that.client, id)
}

func (that *Storage) GetRoomByName(ctx context.Context, name string) (*entity.Room, error) {
	id, err := that.client.Get(ctx, nameKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, failure("failed to get room by name", err)
	}

	return that.GetRoom(ctx, id)
}

func (that *Storage) ListRooms(ctx context.Context) ([]*entity.Room, error) {
	ids, err := that.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, failure("failed to list rooms", err)
	}

	rooms := make([]*entity.Room, 0, len(ids))
	if len(ids) == 0 {
		return rooms, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, roomKey(id))
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, failure("failed to get rooms", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var room entity.Room
		if err = json.Unmarshal([]byte(raw), &room); err != nil {
			return nil, failure("failed to unmarshal room", err)
		}

		rooms = append(rooms, &room)
	}

	return rooms, nil
}

func (that *Storage) PutRoom(ctx context.Context, room *entity.Room) error {
	return that.Commit(ctx, room, nil)
}

func (that *Storage) GetGameState(ctx context.Context, roomID string) (*entity.GameState, error) {
	response, err := that.client.Get(ctx, gameKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, failure("failed to get game state", err)
	}

	var state entity.GameState
	if err = json.Unmarshal([]byte(response), &state); err != nil {
		return nil, failure("failed to unmarshal game state", err)
	}

	return &state, nil
}

// PutGameState - replaces the state under WATCH if nobody wrote it since the caller read it.
func (that *Storage) PutGameState(ctx context.Context, state *entity.GameState) error {
	next := *state
	next.Revision++

	stateJSON, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("could not marshal game state: %w", err)
	}

	err = that.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := checkState(ctx, tx, state); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(state.RoomID), stateJSON, 0)

			return nil
		})

		return err
	}, gameKey(state.RoomID))
	if err != nil {
		return mapError("failed to put game state", err)
	}

	state.Revision = next.Revision

	return nil
}

// Commit - writes the room, its players and optionally the state under WATCH on the room and game keys.
func (that *Storage) Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	nextRoom := *room
	nextRoom.Revision++

	var nextState *entity.GameState
	if state != nil {
		copied := *state
		copied.Revision++
		nextState = &copied
	}

	roomJSON, stateJSON, err := marshalPair(&nextRoom, nextState)
	if err != nil {
		return err
	}

	err = that.client.Watch(ctx, func(tx *redis.Tx) error {
		previous, err := getRoom(ctx, tx, room.ID)
		if err != nil {
			return err
		}

		if previous.Revision != room.Revision {
			return repository.ErrStaleWrite
		}

		if state != nil {
			if err = checkState(ctx, tx, state); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, player := range previous.Players() {
				pipe.Del(ctx, playerKey(player.SessionToken))
			}

			pipe.Set(ctx, roomKey(room.ID), roomJSON, 0)
			if stateJSON != nil {
				pipe.Set(ctx, gameKey(room.ID), stateJSON, 0)
			}

			return setPlayers(ctx, pipe, room)
		})

		return err
	}, roomKey(room.ID), gameKey(room.ID))
	if err != nil {
		return mapError("failed to commit room", err)
	}

	room.Revision = nextRoom.Revision
	if state != nil {
		state.Revision = nextState.Revision
	}

	return nil
}

func (that *Storage) DeleteRoom(ctx context.Context, id string) error {
	room, err := that.GetRoom(ctx, id)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, player := range room.Players() {
			pipe.Del(ctx, playerKey(player.SessionToken))
		}

		pipe.Del(ctx, roomKey(id), gameKey(id), nameKey(room.Name))
		pipe.SRem(ctx, roomsKey, id)

		return nil
	})
	if err != nil {
		return failure("failed to delete room", err)
	}

	return nil
}

func (that *Storage) GetPlayer(ctx context.Context, sessionToken string) (*entity.Player, error) {
	response, err := that.client.Get(ctx, playerKey(sessionToken)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSessionUnknown
	}

	if err != nil {
		return nil, failure("failed to get player", err)
	}

	var player entity.Player
	if err = json.Unmarshal([]byte(response), &player); err != nil {
		return nil, failure("failed to unmarshal player", err)
	}

	return &player, nil
}

func (that *Storage) Close() error {
	return nil
}

func getRoom(ctx context.Context, client getter, id string) (*entity.Room, error) {
	response, err := client.Get(ctx, roomKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, failure("failed to get room", err)
	}

	var room entity.Room
	if err = json.Unmarshal([]byte(response), &room); err != nil {
		return nil, failure("failed to unmarshal room", err)
	}

	return &room, nil
}

// checkState - fails unless the stored state is still at the caller's revision.
func checkState(ctx context.Context, client getter, state *entity.GameState) error {
	response, err := client.Get(ctx, gameKey(state.RoomID)).Result()
	if errors.Is(err, redis.Nil) {
		return apperror.ErrRoomNotFound
	}

	if err != nil {
		return failure("failed to get game state", err)
	}

	var stored entity.GameState
	if err = json.Unmarshal([]byte(response), &stored); err != nil {
		return failure("failed to unmarshal game state", err)
	}

	if stored.Revision != state.Revision {
		return repository.ErrStaleWrite
	}

	return nil
}

func setPlayers(ctx context.Context, pipe redis.Pipeliner, room *entity.Room) error {
	for _, player := range room.Players() {
		playerJSON, err := json.Marshal(player)
		if err != nil {
			return fmt.Errorf("could not marshal player: %w", err)
		}

		pipe.Set(ctx, playerKey(player.SessionToken), playerJSON, 0)
	}

	return nil
}

func marshalPair(room *entity.Room, state *entity.GameState) ([]byte, []byte, error) {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal room: %w", err)
	}

	if state == nil {
		return roomJSON, nil, nil
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal game state: %w", err)
	}

	return roomJSON, stateJSON, nil
}

// mapError - passes domain errors through. A WATCH that fired means another writer got there first.
func mapError(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return repository.ErrStaleWrite
	case apperror.IsDomain(err), errors.Is(err, repository.ErrRoomIDTaken), errors.Is(err, apperror.ErrStorageFailure):
		return err
	default:
		return failure(msg, err)
	}
}

func failure(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperror.ErrStorageFailure, msg, err)
}
