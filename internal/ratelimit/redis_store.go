package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript はINCRと初回のみのPEXPIRE、残りTTLの取得を1往復で原子的に行う。
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisCounterStore はRedisを使用したCounterStore。
type RedisCounterStore struct {
	client redis.Scripter
}

// NewRedisCounterStore はRedisCounterStoreを生成する。
func NewRedisCounterStore(client redis.Scripter) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Increment はkeyのカウンタを原子的にインクリメントする。
func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("レート制限カウンタの更新に失敗しました: %w", err)
	}
	return parseIncrementResult(vals)
}

// parseIncrementResult はスクリプトの戻り値 {count, pttl} を解釈する。
// PTTLが負（期限なし/キーなし）の場合はTTL 0を返す。
func parseIncrementResult(vals []int64) (int64, time.Duration, error) {
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("レート制限スクリプトの戻り値が不正です: %v", vals)
	}
	count, pttl := vals[0], vals[1]
	if pttl < 0 {
		return count, 0, nil
	}
	return count, time.Duration(pttl) * time.Millisecond, nil
}

var _ CounterStore = (*RedisCounterStore)(nil)
