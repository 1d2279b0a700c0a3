package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and sizes the backing database.
type Config struct {
	Driver string
	URL    string // PostgreSQL DSN, or the SQLite file path
	Pool   PoolConfig
	Redis  RedisConfig
}

// Open connects the configured backend and wraps it in the Redis cache
// when one is configured.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		backing Store
		err     error
	)
	switch cfg.Driver {
	case DriverPostgres:
		pool := cfg.Pool
		pool.URL = cfg.URL
		backing, err = OpenPostgres(ctx, pool)
	case DriverSQLite:
		backing, err = OpenSQLite(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	rdb, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		// the listing still works without a cache
		slog.Warn("redis unavailable, cable listing is uncached", "addr", cfg.Redis.Addr, "error", err)
		return backing, nil
	}
	if rdb == nil {
		return backing, nil
	}
	slog.Info("cable listing cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	return NewCachedStore(backing, rdb, cfg.Redis.TTL), nil
}
