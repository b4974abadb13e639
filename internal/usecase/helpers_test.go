package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/lease"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/memory"
	"github.com/rocketscienceinc/xiangqi-backend/internal/session"
	"github.com/rocketscienceinc/xiangqi-backend/internal/xiangqi"
)

var testSettings = Settings{
	RejoinGrace: 30 * time.Second,
	IdleTimeout: 5 * time.Minute,
}

type nopConn struct{}

func (nopConn) Send([]byte) bool { return true }
func (nopConn) Close() error     { return nil }

type notice struct {
	roomID  string
	msg     any
	exclude string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (that *recordingNotifier) NotifyRoom(_ context.Context, roomID string, msg any, exclude string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.notices = append(that.notices, notice{roomID: roomID, msg: msg, exclude: exclude})
}

func (that *recordingNotifier) all() []notice {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]notice(nil), that.notices...)
}

func (that *recordingNotifier) reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.notices = nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (that *clock) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.now
}

func (that *clock) Advance(d time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.now = that.now.Add(d)
}

type mockRules struct {
	mock.Mock
}

func (that *mockRules) InitialBoard() (json.RawMessage, error) {
	args := that.Called()
	board, _ := args.Get(0).(json.RawMessage)

	return board, args.Error(1)
}

func (that *mockRules) ValidateMove(board json.RawMessage, from, to entity.Position, color entity.Color) (*entity.MoveOutcome, error) {
	args := that.Called(board, from, to, color)
	outcome, _ := args.Get(0).(*entity.MoveOutcome)

	return outcome, args.Error(1)
}

// failingStore fails every write once armed.
type failingStore struct {
	*memory.Storage
	armed atomic.Bool
}

func (that *failingStore) failure() error {
	return fmt.Errorf("%w: connection reset", apperror.ErrStorageFailure)
}

func (that *failingStore) PutRoom(ctx context.Context, room *entity.Room) error {
	if that.armed.Load() {
		return that.failure()
	}

	return that.Storage.PutRoom(ctx, room)
}

func (that *failingStore) PutGameState(ctx context.Context, state *entity.GameState) error {
	if that.armed.Load() {
		return that.failure()
	}

	return that.Storage.PutGameState(ctx, state)
}

func (that *failingStore) Commit(ctx context.Context, room *entity.Room, state *entity.GameState) error {
	if that.armed.Load() {
		return that.failure()
	}

	return that.Storage.Commit(ctx, room, state)
}

type refusingLocker struct{}

func (refusingLocker) Lock(context.Context, string) (lease.Unlock, error) {
	return nil, lease.ErrNotAcquired
}

type env struct {
	manager  *RoomManager
	store    roomRepo
	registry *session.Registry
	notifier *recordingNotifier
	clock    *clock
}

type option func(*envOptions)

type envOptions struct {
	store  roomRepo
	rules  rules
	locker lease.Locker
}

func withStore(store roomRepo) option {
	return func(o *envOptions) { o.store = store }
}

func withRules(rules rules) option {
	return func(o *envOptions) { o.rules = rules }
}

func withLocker(locker lease.Locker) option {
	return func(o *envOptions) { o.locker = locker }
}

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()

	options := &envOptions{
		store:  memory.New(),
		rules:  xiangqi.New(),
		locker: lease.NewNoop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	registry := session.NewRegistry()
	notifier := &recordingNotifier{}
	clk := newClock()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewRoomManager(logger, options.store, options.locker, options.rules, registry, notifier, testSettings)
	manager.now = clk.Now

	return &env{
		manager:  manager,
		store:    options.store,
		registry: registry,
		notifier: notifier,
		clock:    clk,
	}
}

// open connects a new session.
func (that *env) open() string {
	return that.registry.Open(nopConn{}).ID
}

// playing sets up a room with both slots taken.
func (that *env) playing(t *testing.T) (red, black *Seat, redID, blackID string) {
	t.Helper()

	ctx := context.Background()
	redID, blackID = that.open(), that.open()

	red, err := that.manager.CreateRoom(ctx, redID, "Alpha")
	require.NoError(t, err)

	black, err = that.manager.JoinRoom(ctx, blackID, red.Room.ID)
	require.NoError(t, err)

	that.notifier.reset()

	return red, black, redID, blackID
}

func move(fromRow, fromCol, toRow, toCol int) entity.Move {
	return entity.Move{
		From: entity.Position{Row: fromRow, Col: fromCol},
		To:   entity.Position{Row: toRow, Col: toCol},
	}
}
