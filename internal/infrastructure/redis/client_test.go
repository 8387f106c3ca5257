package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestClient_GetSetDel(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "member:1:balance")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.Set(ctx, "member:1:balance", `{"available":10}`, time.Minute))
	val, err := c.Get(ctx, "member:1:balance")
	require.NoError(t, err)
	assert.Equal(t, `{"available":10}`, val)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "member:1:balance")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Del(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.NoError(t, c.Del(ctx))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	c, err := NewClient(context.Background(), addr)
	require.NoError(t, err)
	assert.NoError(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())

	mr.Close()
	_, err = NewClient(context.Background(), addr)
	assert.Error(t, err)
}
