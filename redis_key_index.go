package newrows

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var _ KeyIndex = (*RedisKeyIndex)(nil)

// RedisKeyIndex 用 Redis Set 记录每张表已写入的键摘要
// 成员是 16 字节的 KeyHash，避免在 Redis 中保存原始键值
type RedisKeyIndex struct {
	client    redis.UniversalClient
	prefix    string
	batchSize int
}

// NewRedisKeyIndex 创建 Redis 键索引
func NewRedisKeyIndex(client redis.UniversalClient) *RedisKeyIndex {
	return &RedisKeyIndex{
		client:    client,
		prefix:    "newrows:keys:",
		batchSize: 10000,
	}
}

// WithPrefix 设置 Redis key 前缀
func (r *RedisKeyIndex) WithPrefix(prefix string) *RedisKeyIndex {
	r.prefix = prefix
	return r
}

// WithBatchSize 单条命令携带的最大成员数
func (r *RedisKeyIndex) WithBatchSize(n int) *RedisKeyIndex {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *RedisKeyIndex) setKey(table string) string { return r.prefix + table }

// ContainsKeys 使用 Pipeline + SMISMEMBER 批量判断
func (r *RedisKeyIndex) ContainsKeys(ctx context.Context, table string, hashes []KeyHash) ([]bool, error) {
	out := make([]bool, 0, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	key := r.setKey(table)
	pipeline := r.client.Pipeline()
	cmds := make([]*redis.BoolSliceCmd, 0, (len(hashes)+r.batchSize-1)/r.batchSize)
	for start := 0; start < len(hashes); start += r.batchSize {
		end := min(start+r.batchSize, len(hashes))
		cmds = append(cmds, pipeline.SMIsMember(ctx, key, members(hashes[start:end])...))
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return nil, &QueryError{Query: "SMISMEMBER " + key, Err: err}
	}
	for _, cmd := range cmds {
		out = append(out, cmd.Val()...)
	}
	return out, nil
}

// AddKeys 使用 Pipeline + SADD 批量记录
func (r *RedisKeyIndex) AddKeys(ctx context.Context, table string, hashes []KeyHash) error {
	if len(hashes) == 0 {
		return nil
	}
	key := r.setKey(table)
	pipeline := r.client.Pipeline()
	for start := 0; start < len(hashes); start += r.batchSize {
		end := min(start+r.batchSize, len(hashes))
		pipeline.SAdd(ctx, key, members(hashes[start:end])...)
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return &QueryError{Query: "SADD " + key, Err: err}
	}
	return nil
}

// Reset 删除表的键索引（Replace 模式或重建表后调用）
func (r *RedisKeyIndex) Reset(ctx context.Context, table string) error {
	if err := r.client.Del(ctx, r.setKey(table)).Err(); err != nil {
		return &QueryError{Query: "DEL " + r.setKey(table), Err: err}
	}
	return nil
}

// Count 已记录的键数量
func (r *RedisKeyIndex) Count(ctx context.Context, table string) (int64, error) {
	n, err := r.client.SCard(ctx, r.setKey(table)).Result()
	if err != nil {
		return 0, &QueryError{Query: "SCARD " + r.setKey(table), Err: err}
	}
	return n, nil
}

func members(hashes []KeyHash) []any {
	out := make([]any, len(hashes))
	for i, h := range hashes {
		out[i] = string(h[:])
	}
	return out
}
