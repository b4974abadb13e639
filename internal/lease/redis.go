package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisRetryMin = 5 * time.Millisecond
	redisRetryMax = 100 * time.Millisecond
)

// releaseScript deletes the lease only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the lease only if it is still held by the caller's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a lease held as SET key token NX PX ttl. While held it is renewed every ttl/3.
type Redis struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(logger *slog.Logger, client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		logger: logger.With("component", "lease"),
		client: client,
		ttl:    ttl,
	}
}

// Lock - spins with backoff until the lease is free or ctx is done.
func (that *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	leaseKey := "lease:" + key
	token := uuid.NewString()
	wait := redisRetryMin

	for {
		acquired, err := that.client.SetNX(ctx, leaseKey, token, that.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}

		if acquired {
			stop := make(chan struct{})
			go that.keepAlive(leaseKey, token, stop)

			return that.unlock(leaseKey, token, stop), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, redisRetryMax)
	}
}

// keepAlive - extends the lease until stop is closed or the token no longer owns it.
func (that *Redis) keepAlive(leaseKey, token string, stop <-chan struct{}) {
	interval := that.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		renewed, err := renewScript.Run(ctx, that.client, []string{leaseKey}, token, that.ttl.Milliseconds()).Int()
		cancel()

		if err != nil {
			that.logger.Warn("failed to renew lease", "key", leaseKey, "error", err)
			continue
		}

		if renewed == 0 {
			// writes made past this point are refused by the store's revision check
			that.logger.Error("lease lost before release", "key", leaseKey)
			return
		}
	}
}

func (that *Redis) unlock(leaseKey, token string, stop chan struct{}) Unlock {
	var once sync.Once

	return func() {
		once.Do(func() {
			close(stop)

			// the caller's context may already be cancelled, the lease must still go
			ctx, cancel := context.WithTimeout(context.Background(), that.ttl)
			defer cancel()

			if err := releaseScript.Run(ctx, that.client, []string{leaseKey}, token).Err(); err != nil {
				that.logger.Error("failed to release lease", "key", leaseKey, "error", err)
			}
		})
	}
}
