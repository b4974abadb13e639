package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var (
	ErrUnknownBackend    = errors.New("unknown storage backend")
	ErrPostgresDSN       = errors.New("postgres dsn is empty")
	ErrNotReplicable     = errors.New("storage backend cannot be shared between instances")
	ErrInvalidHeartbeats = errors.New("heartbeat interval and missed heartbeats must be positive")
	ErrInvalidLeaseTTL   = errors.New("lease ttl must be positive")
)

type Config struct {
	LogLevel   string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string   `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	Storage    Storage  `yaml:"storage"`
	Redis      Redis    `yaml:"redis"`
	Postgres   Postgres `yaml:"postgres"`
	NATS       NATS     `yaml:"nats"`
	Room       Room     `yaml:"room"`
}

type Storage struct {
	Backend    string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	SQLitePath string `yaml:"sqlite-path" env:"SQLITE_PATH" env-default:"xiangqi.db"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

// NATS relays room broadcasts between instances. An empty URL means a single instance.
type NATS struct {
	URL     string `yaml:"url" env:"NATS_URL"`
	Subject string `yaml:"subject" env:"NATS_SUBJECT" env-default:"xiangqi.rooms"`
}

type Room struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat-interval" env:"ROOM_HEARTBEAT_INTERVAL" env-default:"30s"`
	MissedHeartbeats  int           `yaml:"missed-heartbeats" env:"ROOM_MISSED_HEARTBEATS" env-default:"3"`
	RejoinGrace       time.Duration `yaml:"rejoin-grace" env:"ROOM_REJOIN_GRACE" env-default:"60s"`
	IdleTimeout       time.Duration `yaml:"idle-timeout" env:"ROOM_IDLE_TIMEOUT" env-default:"5m"`
	SweepInterval     time.Duration `yaml:"sweep-interval" env:"ROOM_SWEEP_INTERVAL" env-default:"30s"`
	LeaseTTL          time.Duration `yaml:"lease-ttl" env:"ROOM_LEASE_TTL" env-default:"5s"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.Storage.Backend {
	case BackendMemory, BackendSQLite:
		if that.Clustered() {
			return fmt.Errorf("%w: %s", ErrNotReplicable, that.Storage.Backend)
		}
	case BackendRedis:
		if that.Room.LeaseTTL <= 0 {
			return ErrInvalidLeaseTTL
		}
	case BackendPostgres:
		if that.Postgres.DSN == "" {
			return ErrPostgresDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, that.Storage.Backend)
	}

	if that.Room.HeartbeatInterval <= 0 || that.Room.MissedHeartbeats <= 0 {
		return ErrInvalidHeartbeats
	}

	return nil
}

// Clustered reports whether several instances share rooms.
func (that *Config) Clustered() bool {
	return that.NATS.URL != ""
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

// DeadAfter is how long a silent session survives.
func (that *Room) DeadAfter() time.Duration {
	return that.HeartbeatInterval * time.Duration(that.MissedHeartbeats)
}
