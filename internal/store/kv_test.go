package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, NewRedisKV(c)
}

func TestRedisKV_GetSetDelete(t *testing.T) {
	mr, kv := setupKV(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "stats:t1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "stats:t1", `{"total":1}`, 30*time.Second))
	v, err := kv.Get(ctx, "stats:t1")
	require.NoError(t, err)
	assert.Equal(t, `{"total":1}`, v)

	mr.FastForward(31 * time.Second)
	_, err = kv.Get(ctx, "stats:t1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "stats:t2", "x", 0))
	require.NoError(t, kv.Delete(ctx, "stats:t2"))
	assert.False(t, mr.Exists("stats:t2"))
	assert.NoError(t, kv.Delete(ctx))
}

func TestJSONHelpers(t *testing.T) {
	_, kv := setupKV(t)
	ctx := context.Background()

	type entry struct {
		Rate string `json:"rate"`
	}
	var got entry
	assert.ErrorIs(t, GetJSON(ctx, kv, "stats:t1", &got), ErrMiss)

	require.NoError(t, SetJSON(ctx, kv, "stats:t1", entry{Rate: "25.0"}, time.Minute))
	require.NoError(t, GetJSON(ctx, kv, "stats:t1", &got))
	assert.Equal(t, "25.0", got.Rate)

	require.NoError(t, kv.Set(ctx, "stats:t2", "{not json", 0))
	assert.ErrorIs(t, GetJSON(ctx, kv, "stats:t2", &got), ErrCorrupt)
}
