package session

import (
	"context"
	"log/slog"
	"time"
)

// Monitor declares sessions dead after deadAfter without any inbound message, checking once per interval.
type Monitor struct {
	logger    *slog.Logger
	registry  *Registry
	interval  time.Duration
	deadAfter time.Duration
	onDead    func(ctx context.Context, sessionID string)
}

func NewMonitor(
	logger *slog.Logger,
	registry *Registry,
	interval, deadAfter time.Duration,
	onDead func(ctx context.Context, sessionID string),
) *Monitor {
	return &Monitor{
		logger:    logger.With("component", "liveness"),
		registry:  registry,
		interval:  interval,
		deadAfter: deadAfter,
		onDead:    onDead,
	}
}

// Run - checks the registry once per interval until ctx is done.
func (that *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			that.Check(ctx)
		}
	}
}

// Check - synthesizes a disconnect for every expired session.
func (that *Monitor) Check(ctx context.Context) {
	for _, sessionID := range that.registry.Expired(that.deadAfter) {
		that.logger.Info("session missed heartbeats", "sessionID", sessionID, "dead_after", that.deadAfter)
		that.onDead(ctx, sessionID)
	}
}
