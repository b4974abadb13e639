package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Storage {
	return &Storage{
		pool: pool,
	}
}

func (that *Storage) CreateRoom(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	err := pgx.BeginFunc(ctx, that.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, status, red_token, black_token, created_at, updated_at, empty_since, revision)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			room.ID, room.Name, string(room.Status), token(room.Red), token(room.Black),
			room.CreatedAt, room.UpdatedAt, room.EmptySince, room.Revision,
		)
		if err != nil {
			return mapInsertError(err)
		}

		if err = insertPlayers(ctx, tx, room); err != nil {
			return err
		}

		return putGameState(ctx, tx, state, true)
	})

	return wrap("failed to create room", err)
}

func (that *Storage) GetRoom(ctx context.Context, id string) (*entity.Room, error) {
	room, err := getRoom(ctx, that.pool, "id", id)

	return room, wrap("failed to get room", err)
}

func (that *Storage) GetRoomByName(ctx context.Context, name string) (*entity.Room, error) {
	room, err := getRoom(ctx, that.pool, "name", name)

	return room, wrap("failed to get room by name", err)
}

func (that *Storage) ListRooms(ctx context.Context) ([]*entity.Room, error) {
	rows, err := that.pool.Query(ctx, `
		SELECT id, name, status, created_at, updated_at, empty_since, revision
		FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, wrap("failed to list rooms", err)
	}

	rooms, err := pgx.CollectRows(rows, scanRoom)
	if err != nil {
		return nil, wrap("failed to scan rooms", err)
	}

	byID := make(map[string]*entity.Room, len(rooms))
	for _, room := range rooms {
		byID[room.ID] = room
	}

	players, err := queryPlayers(ctx, that.pool, `
		SELECT session_token, room_id, color, session_id, connected, last_seen FROM players`)
	if err != nil {
		return nil, wrap("failed to list players", err)
	}

	for _, player := range players {
		if room, ok := byID[player.RoomID]; ok {
			room.SetSlot(player.Color, player.Ref())
		}
	}

	return rooms, nil
}

func (that *Storage) PutRoom(ctx context.Context, room *entity.Room) error {
	return that.Commit(ctx, room, nil)
}

func (that *Storage) GetGameState(ctx context.Context, roomID string) (*entity.GameState, error) {
	state := entity.GameState{RoomID: roomID}

	var (
		board    []byte
		lastMove []byte
	)

	err := that.pool.QueryRow(ctx, `
		SELECT board, turn, last_move, winner, updated_at, revision FROM game_state WHERE room_id = $1`, roomID,
	).Scan(&board, &state.Turn, &lastMove, &state.Winner, &state.UpdatedAt, &state.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, wrap("failed to get game state", err)
	}

	state.Board = board
	if lastMove != nil {
		state.LastMove = &entity.Move{}
		if err = json.Unmarshal(lastMove, state.LastMove); err != nil {
			return nil, wrap("failed to unmarshal last move", err)
		}
	}

	return &state, nil
}

func (that *Storage) PutGameState(ctx context.Context, state *entity.GameState) error {
	if err := putGameState(ctx, that.pool, state, false); err != nil {
		return wrap("failed to put game state", err)
	}

	state.Revision++

	return nil
}

// Commit - rewrites the room row, replaces its players and optionally the state in one transaction.
// Rows are only updated at the caller's revision.
func (that *Storage) Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	err := pgx.BeginFunc(ctx, that.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE rooms
			SET status = $2, red_token = $3, black_token = $4, updated_at = $5, empty_since = $6, revision = revision + 1
			WHERE id = $1 AND revision = $7`,
			room.ID, string(room.Status), token(room.Red), token(room.Black), room.UpdatedAt, room.EmptySince, room.Revision,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return missingOrStale(ctx, tx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, room.ID)
		}

		if _, err = tx.Exec(ctx, `DELETE FROM players WHERE room_id = $1`, room.ID); err != nil {
			return err
		}

		if err = insertPlayers(ctx, tx, room); err != nil {
			return err
		}

		if state == nil {
			return nil
		}

		return putGameState(ctx, tx, state, false)
	})
	if err != nil {
		return wrap("failed to commit room", err)
	}

	room.Revision++
	if state != nil {
		state.Revision++
	}

	return nil
}

func (that *Storage) DeleteRoom(ctx context.Context, id string) error {
	if _, err := that.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return wrap("failed to delete room", err)
	}

	return nil
}

func (that *Storage) GetPlayer(ctx context.Context, sessionToken string) (*entity.Player, error) {
	players, err := queryPlayers(ctx, that.pool, `
		SELECT session_token, room_id, color, session_id, connected, last_seen
		FROM players WHERE session_token = $1`, sessionToken)
	if err != nil {
		return nil, wrap("failed to get player", err)
	}

	if len(players) == 0 {
		return nil, apperror.ErrSessionUnknown
	}

	return players[0], nil
}

func (that *Storage) Close() error {
	return nil
}

func getRoom(ctx context.Context, db querier, column, value string) (*entity.Room, error) {
	rows, err := db.Query(ctx, `
		SELECT id, name, status, created_at, updated_at, empty_since, revision
		FROM rooms WHERE `+column+` = $1`, value)
	if err != nil {
		return nil, err
	}

	room, err := pgx.CollectOneRow(rows, scanRoom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, err
	}

	players, err := queryPlayers(ctx, db, `
		SELECT session_token, room_id, color, session_id, connected, last_seen
		FROM players WHERE room_id = $1`, room.ID)
	if err != nil {
		return nil, err
	}

	for _, player := range players {
		room.SetSlot(player.Color, player.Ref())
	}

	return room, nil
}

func scanRoom(row pgx.CollectableRow) (*entity.Room, error) {
	var room entity.Room

	if err := row.Scan(&room.ID, &room.Name, &room.Status, &room.CreatedAt, &room.UpdatedAt, &room.EmptySince, &room.Revision); err != nil {
		return nil, err
	}

	return &room, nil
}

func queryPlayers(ctx context.Context, db querier, sql string, args ...any) ([]*entity.Player, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Player, error) {
		var player entity.Player

		err := row.Scan(&player.SessionToken, &player.RoomID, &player.Color, &player.SessionID, &player.Connected, &player.LastSeen)

		return &player, err
	})
}

func insertPlayers(ctx context.Context, db querier, room *entity.Room) error {
	for _, player := range room.Players() {
		_, err := db.Exec(ctx, `
			INSERT INTO players (session_token, room_id, color, session_id, connected, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			player.SessionToken, player.RoomID, string(player.Color), player.SessionID, player.Connected, player.LastSeen,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func putGameState(ctx context.Context, db querier, state *entity.GameState, insert bool) error {
	var lastMove []byte
	if state.LastMove != nil {
		var err error
		if lastMove, err = json.Marshal(state.LastMove); err != nil {
			return fmt.Errorf("could not marshal last move: %w", err)
		}
	}

	if insert {
		_, err := db.Exec(ctx, `
			INSERT INTO game_state (room_id, board, turn, last_move, winner, updated_at, revision)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			state.RoomID, string(state.Board), string(state.Turn), nullableJSON(lastMove), string(state.Winner), state.UpdatedAt,
			state.Revision,
		)

		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE game_state
		SET board = $2, turn = $3, last_move = $4, winner = $5, updated_at = $6, revision = revision + 1
		WHERE room_id = $1 AND revision = $7`,
		state.RoomID, string(state.Board), string(state.Turn), nullableJSON(lastMove), string(state.Winner), state.UpdatedAt,
		state.Revision,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, db, `SELECT EXISTS (SELECT 1 FROM game_state WHERE room_id = $1)`, state.RoomID)
	}

	return nil
}

// missingOrStale - explains an update that matched no row.
func missingOrStale(ctx context.Context, db querier, sql, id string) error {
	var exists bool
	if err := db.QueryRow(ctx, sql, id).Scan(&exists); err != nil {
		return err
	}

	if !exists {
		return apperror.ErrRoomNotFound
	}

	return repository.ErrStaleWrite
}

func nullableJSON(raw []byte) any {
	if raw == nil {
		return nil
	}

	return string(raw)
}

func token(ref *entity.PlayerRef) any {
	if ref == nil {
		return nil
	}

	return ref.SessionToken
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	if pgErr.ConstraintName == "rooms_name_key" {
		return apperror.ErrNameConflict
	}

	return repository.ErrRoomIDTaken
}

// wrap - passes domain errors through and marks everything else as a storage failure.
func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}

	if apperror.IsDomain(err) || errors.Is(err, repository.ErrRoomIDTaken) || errors.Is(err, apperror.ErrStorageFailure) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", apperror.ErrStorageFailure, msg, err)
}
