package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SeqField 版本字段：记录写入该哈希的事件序号
const SeqField = "_seq"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("redis: 键不存在")

// 仅当传入序号不小于已存序号时整体替换哈希；返回 1 表示已写入，0 表示被更新的数据挡住
var versionedReplace = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], '_seq')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], '_seq', ARGV[1], unpack(ARGV, 3))
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// SetVersionedHash 以事件序号为版本写入哈希
// 相同序号重复写入结果一致；较旧序号不会覆盖较新状态
func (c *Client) SetVersionedHash(ctx context.Context, key string, seq uint64, fields map[string]string, ttl time.Duration) (bool, error) {
	args := make([]interface{}, 0, 2+len(fields)*2)
	args = append(args, strconv.FormatUint(seq, 10), strconv.FormatInt(ttl.Milliseconds(), 10))
	for k, v := range fields {
		args = append(args, k, v)
	}
	if len(fields) == 0 {
		// HSET 至少需要一对字段
		args = append(args, "_empty", "1")
	}

	n, err := versionedReplace.Run(ctx, c.rdb, []string{key}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetHash 读取哈希全部字段；键不存在时返回 ErrNotFound
func (c *Client) GetHash(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}
