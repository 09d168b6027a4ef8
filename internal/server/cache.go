package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/moltlabs/molt-indexer/config"
)

// Cache is a small read-through response cache over Redis. A nil Cache or
// one without a client disables caching; handlers just hit Postgres.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *log.Logger
}

func initCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log.New(log.Writer(), "[CACHE] ", log.LstdFlags)}, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *Cache) set(ctx context.Context, key string, v []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, v, c.ttl).Err(); err != nil {
		c.log.Printf("set %s: %v", key, err)
	}
}

// respondCached serves a cached JSON body when present and loads, caches
// and serves it otherwise. Cache failures degrade to plain queries.
func respondCached(c echo.Context, cache *Cache, key string, load func() (interface{}, error)) error {
	ctx := c.Request().Context()
	if b, ok := cache.get(ctx, key); ok {
		return c.JSONBlob(http.StatusOK, b)
	}
	v, err := load()
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cache.set(ctx, key, b)
	return c.JSONBlob(http.StatusOK, b)
}
