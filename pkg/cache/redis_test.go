package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), srv.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, srv
}

func TestRedisGetSet(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, r.Set(ctx, "k1", []byte("v1"), time.Minute))
	val, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestRedisTTLExpiry(t *testing.T) {
	r, srv := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k1", []byte("v1"), time.Minute))
	srv.FastForward(2 * time.Minute)

	_, err := r.Get(ctx, "k1")
	assert.True(t, IsMiss(err))
}

func TestRedisDeletePrefix(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, SearchKey("t1", "q", 1, 20), []byte("a"), time.Minute))
	require.NoError(t, r.Set(ctx, SearchKey("t1", "q", 2, 20), []byte("b"), time.Minute))
	require.NoError(t, r.Set(ctx, FlagsKey("t1"), []byte("c"), time.Minute))

	require.NoError(t, r.DeletePrefix(ctx, SearchPrefix("t1")))

	_, err := r.Get(ctx, SearchKey("t1", "q", 1, 20))
	assert.True(t, IsMiss(err))
	_, err = r.Get(ctx, FlagsKey("t1"))
	assert.NoError(t, err)
}

func TestRedisBackendFaultIsNotAMiss(t *testing.T) {
	r, srv := newTestRedis(t)
	srv.Close()

	_, err := r.Get(context.Background(), "k1")
	require.Error(t, err)
	assert.False(t, IsMiss(err), "a dead backend must not read as a miss")
}
