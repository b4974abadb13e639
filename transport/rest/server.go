package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 5 * time.Second

// NewRouter - builds the lobby API.
func NewRouter(logger *slog.Logger, rooms roomFinder) *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true

	router.Use(middleware.Recover())
	router.Use(middleware.CORS())

	ping := NewPingHandler()
	lobby := NewLobby(logger, rooms)

	router.GET("/ping", ping.Ping)
	router.GET("/rooms", lobby.ListRooms)
	router.GET("/rooms/:identifier", lobby.GetRoom)
	router.GET("/rooms/:identifier/exists", lobby.RoomExists)

	return router
}

// Start - serves the lobby API until ctx is done.
func Start(ctx context.Context, logger *slog.Logger, port string, rooms roomFinder) error {
	router := NewRouter(logger, rooms)
	router.Server.ReadTimeout = 10 * time.Second
	router.Server.WriteTimeout = 10 * time.Second
	router.Server.IdleTimeout = 30 * time.Second

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := router.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}
	}()

	if err := router.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
