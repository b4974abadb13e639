package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres holds a session-level advisory lock on a dedicated pooled connection.
type Postgres struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func NewPostgres(logger *slog.Logger, pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		logger: logger.With("component", "lease"),
		pool:   pool,
	}
}

func (that *Postgres) Lock(ctx context.Context, key string) (Unlock, error) {
	conn, err := that.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lease %s: %w", key, err)
	}

	if _, err = conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			that.logger.Error("failed to release lease", "key", key, "error", err)

			// a connection that may still hold the lock must not go back to the pool
			_ = conn.Conn().Close(ctx)
		}

		conn.Release()
	}, nil
}
