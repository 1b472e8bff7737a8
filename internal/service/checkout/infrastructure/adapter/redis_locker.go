package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"convenience/internal/pkg/logger"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// 只有持有者才能释放锁
var releaseLockScript = redis.NewScript(`
-- KEYS[1]: 锁的 Key, 例如: checkout:lock:{콜라}
-- ARGV[1]: 加锁时写入的 token
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// RedisLocker 是 port.ProductLocker 的 Redis 实现，适用于多实例部署
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker 创建锁适配器，ttl 为 0 时使用默认值
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl, retry: defaultLockRetry}
}

func lockKey(productName string) string {
	return fmt.Sprintf("checkout:lock:{%s}", productName)
}

// Lock 使用 SET NX PX 抢锁，抢不到时轮询直到 ctx 结束
func (l *RedisLocker) Lock(ctx context.Context, productName string) (func(), error) {
	key := lockKey(productName)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "acquire redis lock %s", key)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "wait for redis lock %s", key)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// 调用方的 ctx 可能已经取消，释放锁使用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
	}
}
