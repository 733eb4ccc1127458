package history

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/json"
)

var _ Store = (*RedisStore)(nil)

// RedisStore 将每个用户的历史保存为一个 Redis list。
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	limit  int
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 历史存储。ttl 为 0 时历史不过期。
func NewRedisStore(client goredis.UniversalClient, prefix string, limit int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		limit:  NormalizeLimit(limit),
		ttl:    ttl,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Append 在一个事务中执行 RPUSH + LTRIM（+ EXPIRE）。
func (s *RedisStore) Append(ctx context.Context, userID, question, answer string) error {
	entries := pair(question, answer)
	values := make([]any, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.ErrHistoryUnavailable.WithCause(err)
		}
		values[i] = data
	}

	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.limit), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.ErrHistoryUnavailable.WithCause(err)
	}
	return nil
}

// Get 读取用户历史，无法解析的记录会被跳过。
func (s *RedisStore) Get(ctx context.Context, userID string) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		return nil, errors.ErrHistoryUnavailable.WithCause(err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear 删除用户历史。
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return errors.ErrHistoryUnavailable.WithCause(err)
	}
	return nil
}
