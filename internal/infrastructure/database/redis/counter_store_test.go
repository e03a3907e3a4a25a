package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*CounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCounterStore(client), mr
}

func TestCounterStore_GetMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	value, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, value)
}

func TestCounterStore_IncrementRestartsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	n, err := store.Increment(ctx, "login:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mr.FastForward(40 * time.Second)

	n, err = store.Increment(ctx, "login:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Minute, mr.TTL("login:a"))

	mr.FastForward(61 * time.Second)
	_, ok, err := store.Get(ctx, "login:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCounterStore_PutAndForget(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "login:b:timer", 1773475230, 30*time.Second))
	value, ok, err := store.Get(ctx, "login:b:timer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1773475230), value)
	assert.Equal(t, 30*time.Second, mr.TTL("login:b:timer"))

	require.NoError(t, store.Put(ctx, "login:b", 3, time.Minute))
	require.NoError(t, store.Forget(ctx, "login:b", "login:b:timer", "login:b:lockouts"))
	assert.False(t, mr.Exists("login:b"))
	assert.False(t, mr.Exists("login:b:timer"))

	assert.NoError(t, store.Forget(ctx))
}

func TestCounterStore_GetNonNumeric(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("login:c", "not-a-number"))

	_, _, err := store.Get(context.Background(), "login:c")
	assert.Error(t, err)
}
