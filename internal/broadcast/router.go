package broadcast

import (
	"context"
	"log/slog"

	"github.com/rocketscienceinc/xiangqi-backend/internal/protocol"
	"github.com/rocketscienceinc/xiangqi-backend/internal/session"
)

type peers interface {
	Peers(roomID, exclude string) []session.Conn
}

// Relay carries room messages to the other instances.
type Relay interface {
	Publish(ctx context.Context, roomID, exclude string, data []byte) error
	Subscribe(deliver func(roomID, exclude string, data []byte)) error
}

// Router fans room messages out to connected sessions. Delivery is fire-and-forget:
// a peer that is gone or too slow simply misses the message and catches up on rejoin.
type Router struct {
	logger *slog.Logger
	peers  peers
	relay  Relay
}

func NewRouter(logger *slog.Logger, peers peers) *Router {
	return &Router{
		logger: logger.With("component", "broadcast"),
		peers:  peers,
	}
}

// WithRelay - routes every message through relay, including the local instance's own sessions.
func (that *Router) WithRelay(relay Relay) error {
	if err := relay.Subscribe(that.Deliver); err != nil {
		return err
	}

	that.relay = relay

	return nil
}

// NotifyRoom - sends msg to every session bound to roomID except exclude.
func (that *Router) NotifyRoom(ctx context.Context, roomID string, msg any, exclude string) {
	log := that.logger.With("method", "NotifyRoom", "roomID", roomID)

	data, err := protocol.Encode(msg)
	if err != nil {
		log.Error("failed to encode message", "error", err)
		return
	}

	if that.relay != nil {
		if err = that.relay.Publish(ctx, roomID, exclude, data); err == nil {
			return
		}

		log.Error("failed to publish to relay, delivering locally", "error", err)
	}

	that.Deliver(roomID, exclude, data)
}

// Deliver - pushes an encoded message to the local sessions of roomID.
func (that *Router) Deliver(roomID, exclude string, data []byte) {
	for _, conn := range that.peers.Peers(roomID, exclude) {
		if !conn.Send(data) {
			that.logger.Debug("message dropped", "roomID", roomID)
		}
	}
}
