package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/rocketscienceinc/xiangqi-backend/internal/session"
	"github.com/rocketscienceinc/xiangqi-backend/internal/usecase"
)

const disconnectTimeout = 5 * time.Second

type roomManager interface {
	CreateRoom(ctx context.Context, sessionID, name string) (*usecase.Seat, error)
	JoinRoom(ctx context.Context, sessionID, identifier string) (*usecase.Seat, error)
	Rejoin(ctx context.Context, sessionID, roomID, token string) (*usecase.Snapshot, error)
	Leave(ctx context.Context, sessionID, roomID, token string) error
	ApplyMove(ctx context.Context, sessionID, roomID, token string, move entity.Move) (*usecase.MoveResult, error)
	Forfeit(ctx context.Context, sessionID, roomID, token string) (*entity.GameState, error)
}

type sessions interface {
	Open(conn session.Conn) *session.Session
	Touch(sessionID string)
	Get(sessionID string) (session.Session, bool)
	Remove(sessionID string) (session.Session, bool)
}

type Server struct {
	logger   *slog.Logger
	sessions sessions
	rooms    roomManager
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, sessions sessions, rooms roomManager) *Server {
	return &Server{
		logger:   logger.With("component", "websocket"),
		sessions: sessions,
		rooms:    rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.serveWS)

	return mux
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveWS - upgrades the connection and runs its read loop until the peer goes away.
func (that *Server) serveWS(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveWS")

	if !websocket.IsWebSocketUpgrade(req) {
		http.Error(writer, "Expected websocket", http.StatusUpgradeRequired)
		return
	}

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(conn)
	sess := that.sessions.Open(client)

	log = log.With("sessionID", sess.ID)
	log.Info("WebSocket connection established")

	go client.writePump(log)

	ctx := req.Context()
	defer that.Disconnect(context.WithoutCancel(ctx), sess.ID)

	if token := req.URL.Query().Get("sessionToken"); token != "" {
		that.dispatch(ctx, client, sess.ID, rejoinRequest(req.URL.Query().Get("roomId"), token))
	}

	that.readPump(ctx, client, sess.ID)
}

func (that *Server) readPump(ctx context.Context, client *client, sessionID string) {
	log := that.logger.With("method", "readPump", "sessionID", sessionID)

	client.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection closed unexpectedly", "error", err)
			}

			return
		}

		that.sessions.Touch(sessionID)
		that.handleMessage(ctx, client, sessionID, data)
	}
}

// Disconnect - tears a session down and leaves its room. Repeated calls for one session do nothing,
// so the liveness monitor and the read loop may both report the same connection.
func (that *Server) Disconnect(ctx context.Context, sessionID string) {
	log := that.logger.With("method", "Disconnect", "sessionID", sessionID)

	sess, ok := that.sessions.Remove(sessionID)
	if !ok {
		return
	}

	_ = sess.Conn.Close()

	if !sess.Binding.Bound() {
		log.Info("session closed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()

	if err := that.rooms.Leave(ctx, sessionID, sess.Binding.RoomID, sess.Binding.Token); err != nil {
		log.Error("failed to leave room on disconnect", "roomID", sess.Binding.RoomID, "error", err)
		return
	}

	log.Info("session closed", "roomID", sess.Binding.RoomID)
}
