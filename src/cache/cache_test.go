package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisCacheFromClient(redis.New(mr.Addr())), mr
}

func newTestBadger(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := NewBadgerCache("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func backends(t *testing.T) map[string]Cache {
	rc, _ := newTestRedis(t)
	return map[string]Cache{
		"redis":  rc,
		"badger": newTestBadger(t),
	}
}

func TestCache_KeyValue(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
			require.NoError(t, c.Set(ctx, "k2", "v2", 0))

			v, ok, err := c.Get(ctx, "k1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v1", v)

			n, err := c.Del(ctx, "k1", "k2", "never-set")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = c.Del(ctx, "k1")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestCache_Sets(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.SAdd(ctx, "positions:token:abc", "1", "2", "3"))
			require.NoError(t, c.SAdd(ctx, "positions:token:abcd", "9"))
			require.NoError(t, c.SRem(ctx, "positions:token:abc", "2", "404"))

			members, err := c.SMembers(ctx, "positions:token:abc")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"1", "3"}, members)

			n, err := c.Del(ctx, "positions:token:abc")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			members, err = c.SMembers(ctx, "positions:token:abc")
			require.NoError(t, err)
			assert.Empty(t, members)

			other, err := c.SMembers(ctx, "positions:token:abcd")
			require.NoError(t, err)
			assert.Equal(t, []string{"9"}, other)
		})
	}
}

func TestCache_LockPrimitives(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := c.SetNX(ctx, "lock:w:t", "token-a", 30*time.Second)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.SetNX(ctx, "lock:w:t", "token-b", 30*time.Second)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = c.ExpireIfEquals(ctx, "lock:w:t", "token-b", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = c.ExpireIfEquals(ctx, "lock:w:t", "token-a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.DelIfEquals(ctx, "lock:w:t", "token-b")
			require.NoError(t, err)
			assert.False(t, ok)
			v, present, err := c.Get(ctx, "lock:w:t")
			require.NoError(t, err)
			assert.True(t, present)
			assert.Equal(t, "token-a", v)

			ok, err = c.DelIfEquals(ctx, "lock:w:t", "token-a")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.DelIfEquals(ctx, "lock:w:t", "token-a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_JSONHelpers(t *testing.T) {
	ctx := context.Background()
	type payload struct {
		ID    uint   `json:"id"`
		Token string `json:"token"`
	}
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, SetJSON(ctx, c, PositionKey(4), payload{ID: 4, Token: "mint"}, time.Minute))

			var got payload
			ok, err := GetJSON(ctx, c, PositionKey(4), &got)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, payload{ID: 4, Token: "mint"}, got)

			ok, err = GetJSON(ctx, c, PositionKey(5), &got)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "short", "v", 2*time.Second))
	ok, err := c.SetNX(ctx, "lease", "tok", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.ExpireIfEquals(ctx, "lease", "tok", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	_, present, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, present)

	_, present, err = c.Get(ctx, "lease")
	require.NoError(t, err)
	assert.True(t, present, "extended lease must survive the original ttl")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "memcached"})
	assert.Error(t, err)
}
