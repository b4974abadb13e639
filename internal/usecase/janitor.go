package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/xiangqi-backend/internal/apperror"
	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

// RunJanitor - sweeps all rooms every interval until ctx is done.
func (that *RoomManager) RunJanitor(ctx context.Context, interval time.Duration) {
	log := that.logger.With("method", "RunJanitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := that.Sweep(ctx)
			if err != nil {
				log.Error("failed to sweep rooms", "error", err)
				continue
			}

			if closed > 0 {
				log.Debug("rooms swept", "closed", closed)
			}
		}
	}
}

// Sweep - releases slots whose grace expired and closes abandoned rooms.
// It returns the number of rooms closed.
func (that *RoomManager) Sweep(ctx context.Context) (int, error) {
	rooms, err := that.rooms.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rooms: %w", err)
	}

	closed := 0
	var errs []error
	for _, room := range rooms {
		disposed, err := that.sweepRoom(ctx, room.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", room.ID, err))
			continue
		}

		if disposed {
			closed++
		}
	}

	return closed, errors.Join(errs...)
}

func (that *RoomManager) sweepRoom(ctx context.Context, roomID string) (bool, error) {
	log := that.logger.With("method", "Sweep", "roomID", roomID)

	disposed := false
	err := that.do(ctx, roomID, func(ctx context.Context) error {
		room, err := that.rooms.GetRoom(ctx, roomID)
		if errors.Is(err, apperror.ErrRoomNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		now := that.now()

		released := false
		for _, color := range []entity.Color{entity.ColorRed, entity.ColorBlack} {
			ref := room.Slot(color)
			if ref == nil || ref.Connected || now.Sub(ref.LastSeenAt) < that.settings.RejoinGrace {
				continue
			}

			room.SetSlot(color, nil)
			released = true

			log.Info("slot released", "color", color)
		}

		// a waiting room without its creator can never start
		if (room.IsWaiting() && room.Red == nil) || room.IdleFor(now, that.settings.IdleTimeout) {
			if err = that.rooms.DeleteRoom(ctx, roomID); err != nil {
				return err
			}

			room.Status = entity.StatusClosed
			disposed = true

			log.Info("room closed", "status", room.Status)

			return nil
		}

		if !released {
			return nil
		}

		room.UpdatedAt = now
		room.MarkOccupancy(now)

		return that.rooms.PutRoom(ctx, room)
	})

	return disposed, err
}
