package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromUniversal(rdb, zap.NewNop()), mr
}

func TestSetVersionedHash_StaleWriteRejected(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetVersionedHash(ctx, "k", 5, map[string]string{"state": "CHECKED_IN"}, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetVersionedHash(ctx, "k", 3, map[string]string{"state": "CHECKED_OUT"}, 0)
	require.NoError(t, err)
	assert.False(t, ok, "旧序号不应覆盖新状态")

	got, err := c.GetHash(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "CHECKED_IN", got["state"])
	assert.Equal(t, "5", got[SeqField])
}

func TestSetVersionedHash_ReplayIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	fields := map[string]string{"state": "ON_BREAK", "late": "1"}

	_, err := c.SetVersionedHash(ctx, "k", 7, fields, time.Hour)
	require.NoError(t, err)
	first, err := c.GetHash(ctx, "k")
	require.NoError(t, err)

	ok, err := c.SetVersionedHash(ctx, "k", 7, fields, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	second, err := c.GetHash(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSetVersionedHash_ReplacesStaleFields(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.SetVersionedHash(ctx, "k", 1, map[string]string{"state": "CHECKED_OUT", "check_out_at": "x"}, time.Minute)
	require.NoError(t, err)
	_, err = c.SetVersionedHash(ctx, "k", 2, map[string]string{"state": "CHECKED_IN"}, time.Minute)
	require.NoError(t, err)

	got, err := c.GetHash(ctx, "k")
	require.NoError(t, err)
	_, present := got["check_out_at"]
	assert.False(t, present, "新快照应整体替换旧字段")
	assert.Greater(t, mr.TTL("k"), time.Duration(0))
}

func TestGetHash_NotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.GetHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckRateLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.CheckRateLimit(ctx, "rl", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "第 %d 次请求应放行", i+1)
	}
	ok, err := c.CheckRateLimit(ctx, "rl", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "超过上限应拒绝")
}

func TestBlacklist(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.BlacklistToken(ctx, "jti-1", time.Minute))
	hit, err := c.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, c.BlacklistToken(ctx, "jti-2", 0))
	hit, err = c.IsBlacklisted(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, hit, "已过期 token 无需拉黑")
}
