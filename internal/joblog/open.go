package joblog

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreConfig selects and configures a Store implementation.
type StoreConfig struct {
	Driver string
	DSN    string
	Redis  redis.UniversalClient
	TTL    time.Duration
}

// OpenStore opens the store named by cfg.Driver: memory, sqlite or redis.
func OpenStore(cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	case "redis":
		return NewRedisStore(RedisOptions{Client: cfg.Redis, TTL: cfg.TTL})
	default:
		return nil, fmt.Errorf("unsupported datastore driver: %s", cfg.Driver)
	}
}
