package geo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

// Cache remembers successful lookups. Implementations treat backend errors as
// a miss.
type Cache interface {
	Get(ctx context.Context, ip string) (*models.Location, bool)
	Set(ctx context.Context, ip string, loc *models.Location)
}

type cachedLocation struct {
	loc      models.Location
	cachedAt time.Time
}

type MemoryCache struct {
	store sync.Map // map[ip]*cachedLocation
	ttl   time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (*models.Location, bool) {
	val, ok := c.store.Load(ip)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedLocation)
	if time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(ip)
		return nil, false
	}

	loc := entry.loc
	return &loc, true
}

func (c *MemoryCache) Set(_ context.Context, ip string, loc *models.Location) {
	c.store.Store(ip, &cachedLocation{loc: *loc, cachedAt: time.Now()})
}

const redisKeyPrefix = "livehook:geo:"

// RedisCache shares lookups between instances.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, ip string) (*models.Location, bool) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("geo cache read failed", zap.String("ip", ip), zap.Error(err))
		}
		return nil, false
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, false
	}
	return &loc, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, loc *models.Location) {
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+ip, raw, c.ttl).Err(); err != nil {
		c.log.Debug("geo cache write failed", zap.String("ip", ip), zap.Error(err))
	}
}
