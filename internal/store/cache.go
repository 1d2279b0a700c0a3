package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 5 * time.Minute

	cacheVersionKey = "cablemap:cables:version"
	cacheListPrefix = "cablemap:cables:list:"
)

// RedisConfig addresses the listing cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// OpenRedis returns nil when no address is configured.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// CachedStore caches ListCables results in Redis. Entries are keyed by a
// version counter that every confirmation bumps, so a new collection is
// visible on the next listing. Cache failures are logged and the backing
// store answers instead.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedStore(backing Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Store: backing, rdb: rdb, ttl: ttl}
}

func (c *CachedStore) ConfirmCollection(ctx context.Context, fc *geojson.FeatureCollection) (string, error) {
	id, err := c.Store.ConfirmCollection(ctx, fc)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Incr(ctx, cacheVersionKey).Err(); err != nil {
		slog.Warn("cable cache invalidation failed", "error", err)
	}
	return id, nil
}

func (c *CachedStore) ListCables(ctx context.Context, f Filter) ([]*geojson.Feature, error) {
	version, err := c.rdb.Get(ctx, cacheVersionKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		version = "0"
	case err != nil:
		slog.Warn("cable cache unavailable", "error", err)
		return c.Store.ListCables(ctx, f)
	}

	key := cacheListPrefix + version + ":" + f.Key()
	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		fc, err := geojson.UnmarshalFeatureCollection(cached)
		if err == nil {
			return fc.Features, nil
		}
		slog.Warn("discarding corrupt cable cache entry", "key", key, "error", err)
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("cable cache read failed", "key", key, "error", err)
	}

	features, err := c.Store.ListCables(ctx, f)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	fc.Features = features
	if data, err := json.Marshal(fc); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("cable cache write failed", "key", key, "error", err)
		}
	}
	return features, nil
}

func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *CachedStore) Close() error {
	err := c.Store.Close()
	if cerr := c.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
