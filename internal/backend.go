package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/xiangqi-backend/internal/config"
	"github.com/rocketscienceinc/xiangqi-backend/internal/lease"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/memory"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/pgstore"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/redisstore"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/sqlitestore"
	"github.com/rocketscienceinc/xiangqi-backend/internal/repository/storage"
)

// backend is a store together with the lease that guards its rooms.
type backend struct {
	store  repository.Store
	locker lease.Locker
}

func (that *backend) Close(log *slog.Logger) {
	if err := that.store.Close(); err != nil {
		log.Error("could not close storage", "error", err)
	}
}

func openBackend(ctx context.Context, logger *slog.Logger, conf *config.Config) (*backend, error) {
	switch conf.Storage.Backend {
	case config.BackendMemory:
		return &backend{store: memory.New(), locker: lease.NewNoop()}, nil
	case config.BackendSQLite:
		db, err := storage.NewSQLiteStorage(ctx, conf.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("could not open sqlite storage: %w", err)
		}

		store := sqlitestore.New(db)
		if err = store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("could not prepare sqlite storage: %w", err)
		}

		return &backend{store: store, locker: lease.NewNoop()}, nil
	case config.BackendRedis:
		client, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
			Addr:     conf.Redis.GetRedisAddr(),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return &backend{
			store:  redisstore.New(client),
			locker: lease.NewRedis(logger, client, conf.Room.LeaseTTL),
		}, nil
	case config.BackendPostgres:
		if err := pgstore.Migrate(conf.Postgres.DSN, logger); err != nil {
			return nil, fmt.Errorf("could not migrate postgres storage: %w", err)
		}

		pool, err := storage.NewPostgresPool(ctx, conf.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("could not connect to postgres storage: %w", err)
		}

		return &backend{
			store:  pgstore.New(pool),
			locker: lease.NewPostgres(logger, pool),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, conf.Storage.Backend)
	}
}

// Migrate - prepares the schema of the configured backend and exits.
func Migrate(ctx context.Context, logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "migrate", "backend", conf.Storage.Backend)

	switch conf.Storage.Backend {
	case config.BackendPostgres:
		if err := pgstore.Migrate(conf.Postgres.DSN, logger); err != nil {
			return fmt.Errorf("could not migrate postgres storage: %w", err)
		}
	case config.BackendSQLite:
		db, err := storage.NewSQLiteStorage(ctx, conf.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("could not open sqlite storage: %w", err)
		}

		store := sqlitestore.New(db)
		defer store.Close()

		if err = store.Init(ctx); err != nil {
			return fmt.Errorf("could not prepare sqlite storage: %w", err)
		}
	default:
		log.Info("backend has no schema")
		return nil
	}

	log.Info("schema is up to date")

	return nil
}
