package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL,
    red_token   TEXT,
    black_token TEXT,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    empty_since INTEGER,
    revision    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS game_state (
    room_id    TEXT PRIMARY KEY REFERENCES rooms (id) ON DELETE CASCADE,
    board      TEXT NOT NULL,
    turn       TEXT NOT NULL,
    last_move  TEXT,
    winner     TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    revision   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS players (
    session_token TEXT PRIMARY KEY,
    room_id       TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
    color         TEXT NOT NULL,
    session_id    TEXT NOT NULL DEFAULT '',
    connected     INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL,
    UNIQUE (room_id, color)
);`

const (
	selectRoom   = `SELECT id, name, status, created_at, updated_at, empty_since, revision FROM rooms`
	selectPlayer = `SELECT session_token, room_id, color, session_id, connected, last_seen FROM players`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Storage struct {
	db *sql.DB
}

func New(db *sql.DB) *Storage {
	return &Storage{
		db: db,
	}
}

// Init - creates the tables.
func (that *Storage) Init(ctx context.Context) error {
	if _, err := that.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("can't create tables: %w", err)
	}

	return nil
}

func (that *Storage) CreateRoom(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	err := that.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, status, red_token, black_token, created_at, updated_at, empty_since, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			room.ID, room.Name, string(room.Status), token(room.Red), token(room.Black),
			toMillis(room.CreatedAt), toMillis(room.UpdatedAt), nullableMillis(room.EmptySince), room.Revision,
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
	room, err := getRoom(ctx, that.db, "id", id)

	return room, wrap("failed to get room", err)
}

func (that *Storage) GetRoomByName(ctx context.Context, name string) (*entity.Room, error) {
	room, err := getRoom(ctx, that.db, "name", name)

	return room, wrap("failed to get room by name", err)
}

func (that *Storage) ListRooms(ctx context.Context) ([]*entity.Room, error) {
	rooms, err := queryRooms(ctx, that.db, selectRoom+` ORDER BY created_at`)
	if err != nil {
		return nil, wrap("failed to list rooms", err)
	}

	byID := make(map[string]*entity.Room, len(rooms))
	for _, room := range rooms {
		byID[room.ID] = room
	}

	players, err := queryPlayers(ctx, that.db, selectPlayer)
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
		board     string
		lastMove  sql.NullString
		updatedAt int64
	)

	err := that.db.QueryRowContext(ctx, `
		SELECT board, turn, last_move, winner, updated_at, revision FROM game_state WHERE room_id = ?`, roomID,
	).Scan(&board, &state.Turn, &lastMove, &state.Winner, &updatedAt, &state.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, wrap("failed to get game state", err)
	}

	state.Board = json.RawMessage(board)
	state.UpdatedAt = fromMillis(updatedAt)

	if lastMove.Valid {
		state.LastMove = &entity.Move{}
		if err = json.Unmarshal([]byte(lastMove.String), state.LastMove); err != nil {
			return nil, wrap("failed to unmarshal last move", err)
		}
	}

	return &state, nil
}

func (that *Storage) PutGameState(ctx context.Context, state *entity.GameState) error {
	if err := putGameState(ctx, that.db, state, false); err != nil {
		return wrap("failed to put game state", err)
	}

	state.Revision++

	return nil
}

func (that *Storage) Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	err := that.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rooms
			SET status = ?, red_token = ?, black_token = ?, updated_at = ?, empty_since = ?, revision = revision + 1
			WHERE id = ? AND revision = ?`,
			string(room.Status), token(room.Red), token(room.Black), toMillis(room.UpdatedAt), nullableMillis(room.EmptySince),
			room.ID, room.Revision,
		)
		if err != nil {
			return err
		}

		if err = requireRow(ctx, tx, result, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = ?)`, room.ID); err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM players WHERE room_id = ?`, room.ID); err != nil {
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
	err := that.inTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM players WHERE room_id = ?`,
			`DELETE FROM game_state WHERE room_id = ?`,
			`DELETE FROM rooms WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return err
			}
		}

		return nil
	})

	return wrap("failed to delete room", err)
}

func (that *Storage) GetPlayer(ctx context.Context, sessionToken string) (*entity.Player, error) {
	players, err := queryPlayers(ctx, that.db, selectPlayer+` WHERE session_token = ?`, sessionToken)
	if err != nil {
		return nil, wrap("failed to get player", err)
	}

	if len(players) == 0 {
		return nil, apperror.ErrSessionUnknown
	}

	return players[0], nil
}

func (that *Storage) Close() error {
	return that.db.Close()
}

func (that *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := that.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func getRoom(ctx context.Context, db querier, column, value string) (*entity.Room, error) {
	rooms, err := queryRooms(ctx, db, selectRoom+` WHERE `+column+` = ?`, value)
	if err != nil {
		return nil, err
	}

	if len(rooms) == 0 {
		return nil, apperror.ErrRoomNotFound
	}

	room := rooms[0]

	players, err := queryPlayers(ctx, db, selectPlayer+` WHERE room_id = ?`, room.ID)
	if err != nil {
		return nil, err
	}

	for _, player := range players {
		room.SetSlot(player.Color, player.Ref())
	}

	return room, nil
}

func queryRooms(ctx context.Context, db querier, query string, args ...any) ([]*entity.Room, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*entity.Room
	for rows.Next() {
		var (
			room                 entity.Room
			createdAt, updatedAt int64
			emptySince           sql.NullInt64
		)

		if err = rows.Scan(&room.ID, &room.Name, &room.Status, &createdAt, &updatedAt, &emptySince, &room.Revision); err != nil {
			return nil, err
		}

		room.CreatedAt = fromMillis(createdAt)
		room.UpdatedAt = fromMillis(updatedAt)
		if emptySince.Valid {
			t := fromMillis(emptySince.Int64)
			room.EmptySince = &t
		}

		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

func queryPlayers(ctx context.Context, db querier, query string, args ...any) ([]*entity.Player, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*entity.Player
	for rows.Next() {
		var (
			player   entity.Player
			lastSeen int64
		)

		if err = rows.Scan(&player.SessionToken, &player.RoomID, &player.Color, &player.SessionID, &player.Connected, &lastSeen); err != nil {
			return nil, err
		}

		player.LastSeen = fromMillis(lastSeen)
		players = append(players, &player)
	}

	return players, rows.Err()
}

func insertPlayers(ctx context.Context, db querier, room *entity.Room) error {
	for _, player := range room.Players() {
		_, err := db.ExecContext(ctx, `
			INSERT INTO players (session_token, room_id, color, session_id, connected, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)`,
			player.SessionToken, player.RoomID, string(player.Color), player.SessionID, player.Connected, toMillis(player.LastSeen),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func putGameState(ctx context.Context, db querier, state *entity.GameState, insert bool) error {
	var lastMove sql.NullString
	if state.LastMove != nil {
		raw, err := json.Marshal(state.LastMove)
		if err != nil {
			return fmt.Errorf("could not marshal last move: %w", err)
		}

		lastMove = sql.NullString{String: string(raw), Valid: true}
	}

	if insert {
		_, err := db.ExecContext(ctx, `
			INSERT INTO game_state (room_id, board, turn, last_move, winner, updated_at, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			state.RoomID, string(state.Board), string(state.Turn), lastMove, string(state.Winner), toMillis(state.UpdatedAt),
			state.Revision,
		)

		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE game_state
		SET board = ?, turn = ?, last_move = ?, winner = ?, updated_at = ?, revision = revision + 1
		WHERE room_id = ? AND revision = ?`,
		string(state.Board), string(state.Turn), lastMove, string(state.Winner), toMillis(state.UpdatedAt),
		state.RoomID, state.Revision,
	)
	if err != nil {
		return err
	}

	return requireRow(ctx, db, result, `SELECT EXISTS (SELECT 1 FROM game_state WHERE room_id = ?)`, state.RoomID)
}

// requireRow - explains an update that matched no row: the record is gone or moved past the caller's revision.
func requireRow(ctx context.Context, db querier, result sql.Result, exists, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected > 0 {
		return nil
	}

	rows, err := db.QueryContext(ctx, exists, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	var found bool
	if rows.Next() {
		if err = rows.Scan(&found); err != nil {
			return err
		}
	}

	if err = rows.Err(); err != nil {
		return err
	}

	if !found {
		return apperror.ErrRoomNotFound
	}

	return repository.ErrStaleWrite
}

func token(ref *entity.PlayerRef) any {
	if ref == nil {
		return nil
	}

	return ref.SessionToken
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}

	return toMillis(*t)
}

func mapInsertError(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}

	if strings.Contains(msg, "rooms.name") {
		return apperror.ErrNameConflict
	}

	return repository.ErrRoomIDTaken
}

func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}

	if apperror.IsDomain(err) || errors.Is(err, repository.ErrRoomIDTaken) || errors.Is(err, apperror.ErrStorageFailure) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", apperror.ErrStorageFailure, msg, err)
}
