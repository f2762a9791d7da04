package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedisGetSetDelete(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "admin_token:abc", "1", 2*time.Hour))
	v, ok, err := store.Get(ctx, "admin_token:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2*time.Hour, mr.TTL("admin_token:abc"))

	mr.FastForward(2*time.Hour + time.Second)
	_, ok, err = store.Get(ctx, "admin_token:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisIncrRefreshesTTL(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, "failed:download:1.2.3.4", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mr.FastForward(30 * time.Minute)
	n, err = store.Incr(ctx, "failed:download:1.2.3.4", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL("failed:download:1.2.3.4"))
}

func TestRedisIncrNonInteger(t *testing.T) {
	store, mr := newTestRedis(t)
	require.NoError(t, mr.Set("k", "abc"))

	_, err := store.Incr(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestRedisGetMany(t *testing.T) {
	store, mr := newTestRedis(t)
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	got, err := store.GetMany(context.Background(), []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	empty, err := store.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), "")
	assert.Error(t, err)
	_, err = Connect(context.Background(), "://bad")
	assert.Error(t, err)
}
