package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		// Given: a config file with only the log level
		path := writeConfig(t, "log-level: debug\n")

		// When: it is loaded
		conf, err := Load(path)

		// Then: the room defaults apply
		require.NoError(t, err)
		assert.Equal(t, "debug", conf.LogLevel)
		assert.Equal(t, BackendMemory, conf.Storage.Backend)
		assert.Equal(t, 30*time.Second, conf.Room.HeartbeatInterval)
		assert.Equal(t, 3, conf.Room.MissedHeartbeats)
		assert.Equal(t, 90*time.Second, conf.Room.DeadAfter())
		assert.Equal(t, 5*time.Minute, conf.Room.IdleTimeout)
		assert.Equal(t, "localhost:6379", conf.Redis.GetRedisAddr())
		assert.False(t, conf.Clustered())
	})

	t.Run("Nested values", func(t *testing.T) {
		path := writeConfig(t, `
storage:
  backend: redis
redis:
  host: cache
  port: "6380"
nats:
  url: nats://localhost:4222
room:
  rejoin-grace: 10s
`)

		conf, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "cache:6380", conf.Redis.GetRedisAddr())
		assert.Equal(t, 10*time.Second, conf.Room.RejoinGrace)
		assert.True(t, conf.Clustered())
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))

		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage: Storage{Backend: BackendMemory},
			Room:    Room{HeartbeatInterval: time.Second, MissedHeartbeats: 3},
		}
	}

	t.Run("Memory store refuses a relay", func(t *testing.T) {
		// Given: a per-process store behind a cross-instance relay
		conf := valid()
		conf.NATS.URL = "nats://localhost:4222"

		// Then: validation fails
		require.ErrorIs(t, conf.Validate(), ErrNotReplicable)

		conf.Storage.Backend = BackendSQLite
		require.ErrorIs(t, conf.Validate(), ErrNotReplicable)
	})

	t.Run("Postgres needs a dsn", func(t *testing.T) {
		conf := valid()
		conf.Storage.Backend = BackendPostgres
		require.ErrorIs(t, conf.Validate(), ErrPostgresDSN)

		conf.Postgres.DSN = "postgres://localhost/xiangqi"
		require.NoError(t, conf.Validate())
	})

	t.Run("Redis needs a lease ttl", func(t *testing.T) {
		conf := valid()
		conf.Storage.Backend = BackendRedis
		require.ErrorIs(t, conf.Validate(), ErrInvalidLeaseTTL)

		conf.Room.LeaseTTL = 5 * time.Second
		require.NoError(t, conf.Validate())
	})

	t.Run("Unknown backend", func(t *testing.T) {
		conf := valid()
		conf.Storage.Backend = "mongo"
		require.ErrorIs(t, conf.Validate(), ErrUnknownBackend)
	})

	t.Run("Heartbeat settings", func(t *testing.T) {
		conf := valid()
		conf.Room.MissedHeartbeats = 0
		require.ErrorIs(t, conf.Validate(), ErrInvalidHeartbeats)
	})
}
