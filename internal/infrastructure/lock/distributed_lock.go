package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis 分布式锁：SET key owner NX PX ttl 加锁，Lua 脚本校验 owner 后删除。
// owner 每次请求唯一，锁过期后被他人持有时不会被误删。

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞加锁，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

func (l *DistributedLock) Key() string {
	return l.key
}

// NewPayoutLock 按卖家维度加锁：同一卖家的提现/转账串行，不同卖家互不影响。
// owner 建议使用请求级 UUID，便于排查是谁持有锁
func NewPayoutLock(client *redis.Client, userID int64, owner string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, fmt.Sprintf("payout:lock:user:%d", userID), owner, expiration)
}
