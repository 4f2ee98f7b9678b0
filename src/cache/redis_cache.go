package cache

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	delIfEqualsScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
	expireIfEqualsScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`
)

// RedisCache implements Cache on a go-zero redis client.
type RedisCache struct {
	rds *redis.Redis
}

func NewRedisCache(addr, password string) (*RedisCache, error) {
	rds, err := redis.NewRedis(redis.RedisConf{
		Host:     addr,
		Type:     redis.NodeType,
		Pass:     password,
		NonBlock: true,
	})
	if err != nil {
		return nil, err
	}
	return &RedisCache{rds: rds}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(rds *redis.Redis) *RedisCache {
	return &RedisCache{rds: rds}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rds.GetCtx(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// go-zero maps a missing key to an empty string.
	if val == "" {
		return "", false, nil
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.rds.SetCtx(ctx, key, value)
	}
	return c.rds.SetexCtx(ctx, key, value, seconds(ttl))
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rds.DelCtx(ctx, keys...)
}

func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := c.rds.SaddCtx(ctx, key, toArgs(members)...)
	return err
}

func (c *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rds.SmembersCtx(ctx, key)
}

func (c *RedisCache) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := c.rds.SremCtx(ctx, key, toArgs(members)...)
	return err
}

func (c *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rds.SetnxExCtx(ctx, key, value, seconds(ttl))
}

func (c *RedisCache) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	res, err := c.rds.EvalCtx(ctx, delIfEqualsScript, []string{key}, value)
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *RedisCache) ExpireIfEquals(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := c.rds.EvalCtx(ctx, expireIfEqualsScript, []string{key}, value, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// Close is a no-op, go-zero manages the shared client pool.
func (c *RedisCache) Close() error {
	return nil
}

func seconds(ttl time.Duration) int {
	return int(math.Max(1, math.Ceil(ttl.Seconds())))
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
