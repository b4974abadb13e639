package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
)

const mailboxSize = 32

var errActorPanic = errors.New("room operation panicked")

type job struct {
	ctx    context.Context //nolint: containedctx // the job runs on behalf of its caller
	fn     func(ctx context.Context) error
	result chan error
}

// roomActor runs one room's operations one at a time, in arrival order.
type roomActor struct {
	mailbox chan *job
	pending int
}

// do - runs fn inside the room's actor while holding the room lease.
// The actor goroutine is started on demand and exits once its mailbox is drained.
func (that *RoomManager) do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, result: make(chan error, 1)}

	that.mu.Lock()
	actor, ok := that.actors[roomID]
	if !ok {
		actor = &roomActor{mailbox: make(chan *job, mailboxSize)}
		that.actors[roomID] = actor

		go that.run(roomID, actor)
	}
	actor.pending++
	that.mu.Unlock()

	// the actor keeps reading while pending > 0, so this send cannot block forever
	actor.mailbox <- j

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (that *RoomManager) run(roomID string, actor *roomActor) {
	for j := range actor.mailbox {
		j.result <- that.execute(roomID, j)

		that.mu.Lock()
		actor.pending--
		if actor.pending == 0 {
			delete(that.actors, roomID)
			that.mu.Unlock()

			return
		}
		that.mu.Unlock()
	}
}

func (that *RoomManager) execute(roomID string, j *job) (err error) {
	// a caller that gave up before its turn leaves no trace
	if err = j.ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			that.logger.Error("room operation panicked", "roomID", roomID, "panic", r)
			err = fmt.Errorf("%w: %v", errActorPanic, r)
		}
	}()

	unlock, err := that.locker.Lock(j.ctx, "room:"+roomID)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrStorageFailure, err)
	}
	defer unlock()

	return j.fn(j.ctx)
}

// activeActors is the number of rooms with a running actor.
func (that *RoomManager) activeActors() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.actors)
}
