package application

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/xiangqi-backend/internal/broadcast"
	"github.com/rocketscienceinc/xiangqi-backend/internal/config"
	"github.com/rocketscienceinc/xiangqi-backend/internal/session"
	"github.com/rocketscienceinc/xiangqi-backend/internal/usecase"
	"github.com/rocketscienceinc/xiangqi-backend/internal/xiangqi"
	"github.com/rocketscienceinc/xiangqi-backend/transport/rest"
	"github.com/rocketscienceinc/xiangqi-backend/transport/websocket"
)

// RunApp - runs the application until ctx is done or a signal arrives.
func RunApp(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openBackend(ctx, logger, conf)
	if err != nil {
		return err
	}

	defer db.Close(log)

	registry := session.NewRegistry()
	router := broadcast.NewRouter(logger, registry)

	if conf.Clustered() {
		relay, err := broadcast.NewNATSRelay(logger, conf.NATS.URL, conf.NATS.Subject)
		if err != nil {
			return fmt.Errorf("could not connect to nats: %w", err)
		}

		defer relay.Close()

		if err = router.WithRelay(relay); err != nil {
			return fmt.Errorf("could not subscribe to room broadcasts: %w", err)
		}
	}

	roomManager := usecase.NewRoomManager(logger, db.store, db.locker, xiangqi.New(), registry, router, usecase.Settings{
		RejoinGrace: conf.Room.RejoinGrace,
		IdleTimeout: conf.Room.IdleTimeout,
	})

	wsServer := websocket.New(logger, registry, roomManager)
	monitor := session.NewMonitor(logger, registry, conf.Room.HeartbeatInterval, conf.Room.DeadAfter(), wsServer.Disconnect)

	go monitor.Run(ctx)
	go roomManager.RunJanitor(ctx, conf.Room.SweepInterval)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, roomManager); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort, "backend", conf.Storage.Backend, "clustered", conf.Clustered())
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
