package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type relayEnvelope struct {
	RoomID  string          `json:"roomId"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// NATSRelay publishes room messages on <subject>.<roomID> and delivers everything
// published under <subject>.> to the local router.
type NATSRelay struct {
	logger  *slog.Logger
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
}

func NewNATSRelay(logger *slog.Logger, url, subject string) (*NATSRelay, error) {
	log := logger.With("component", "relay")

	conn, err := nats.Connect(
		url,
		nats.Name("xiangqi-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("relay disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("relay reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSRelay{
		logger:  log,
		conn:    conn,
		subject: strings.TrimSuffix(subject, "."),
	}, nil
}

func (that *NATSRelay) Publish(_ context.Context, roomID, exclude string, data []byte) error {
	envelope, err := json.Marshal(relayEnvelope{RoomID: roomID, Exclude: exclude, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	if err = that.conn.Publish(that.subject+"."+roomID, envelope); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}

	return nil
}

func (that *NATSRelay) Subscribe(deliver func(roomID, exclude string, data []byte)) error {
	sub, err := that.conn.Subscribe(that.subject+".>", func(msg *nats.Msg) {
		var envelope relayEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			that.logger.Error("failed to unmarshal relay envelope", "subject", msg.Subject, "error", err)
			return
		}

		deliver(envelope.RoomID, envelope.Exclude, envelope.Payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to nats: %w", err)
	}

	that.sub = sub

	return nil
}

func (that *NATSRelay) Close() {
	if that.sub != nil {
		_ = that.sub.Unsubscribe()
	}

	if err := that.conn.Drain(); err != nil {
		that.logger.Error("failed to drain nats connection", "error", err)
	}
}
