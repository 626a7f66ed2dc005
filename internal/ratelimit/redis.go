package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript はMemoryStore.Checkと同じ判定をRedis上で原子的に行う。
// KEYS[1]=カウンターキー, ARGV[1]=limit, ARGV[2]=window(ms), ARGV[3]=now(unix ms)
// 戻り値: {allowed(0/1), count, resetAt(unix ms)}
var checkScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local count = redis.call('HGET', KEYS[1], 'count')
local reset = redis.call('HGET', KEYS[1], 'reset')
if (not count) or (not reset) or now > tonumber(reset) then
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
  redis.call('PEXPIRE', KEYS[1], window + 1000)
  return {1, 1, reset}
end
count = tonumber(count)
reset = tonumber(reset)
if count >= limit then
  return {0, count, reset}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, reset}
`)

// RedisConfig はRedisStoreの設定。
type RedisConfig struct {
	KeyPrefix string
}

// RedisStore はRedisによるStore実装。
// 全レプリカが同じカウンターを共有するため、上限はクラスタ全体で適用される。
// キーにはウィンドウ終了直後に失効するTTLを設定するため、放置されたキーは自然に消える。
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisConfig
	now    func() time.Time
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	return &RedisStore{client: client, cfg: cfg, now: time.Now}
}

// WithClock はテスト用に時計を差し替える。
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Check はkeyのカウンターをスクリプトで評価する。
func (s *RedisStore) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := (Policy{Limit: limit, Window: window}).validate(); err != nil {
		return Decision{}, err
	}

	now := s.now()
	res, err := checkScript.Run(ctx, s.client,
		[]string{s.key(key)},
		limit, window.Milliseconds(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	return Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]),
	}, nil
}

// Clear はkeyのカウンターを削除する。
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	if s.cfg.KeyPrefix == "" {
		return key
	}
	return s.cfg.KeyPrefix + ":" + key
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
