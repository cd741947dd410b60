package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TanmayDhobale/miniForesight/internal/market"
)

// ErrCacheMiss is returned by MarketCache.Get when the market is not cached.
var ErrCacheMiss = errors.New("projection: cache miss")

const DefaultMarketTTL = 5 * time.Minute

// MarketCache is a read-side copy of market records.
type MarketCache interface {
	Get(ctx context.Context, id uint64) (*market.Market, error)
	// Set stores m as of sequence; an entry already at a later sequence
	// is kept.
	Set(ctx context.Context, m *market.Market, sequence int64) error
	Invalidate(ctx context.Context, id uint64) error
}

// RedisMarketCache implements MarketCache using Redis hashes with a
// JSON-serialized Market and the sequence it reflects.
//
// Key schema:
//
//	foresight:market:{id} - hash {data: JSON, seq: int}
type RedisMarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMarketCache(rdb *redis.Client, ttl time.Duration) *RedisMarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &RedisMarketCache{rdb: rdb, ttl: ttl}
}

func marketKey(id uint64) string { return "foresight:market:" + strconv.FormatUint(id, 10) }

// setIfNewer writes the hash only when the stored seq is older, so a slow
// writer never overwrites a fresher entry.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'seq', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *RedisMarketCache) Set(ctx context.Context, m *market.Market, sequence int64) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", m.ID, err)
	}
	err = setIfNewer.Run(ctx, c.rdb, []string{marketKey(m.ID)}, data, sequence, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %d: %w", m.ID, err)
	}
	return nil
}

// Get returns ErrCacheMiss when the key does not exist.
func (c *RedisMarketCache) Get(ctx context.Context, id uint64) (*market.Market, error) {
	data, err := c.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var m market.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return &m, nil
}

func (c *RedisMarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := c.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

// Ping reports Redis reachability for readiness checks.
func (c *RedisMarketCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
