package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
)

// releaseScript 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript 只为自己持有的锁续期
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// CampaignLock 基于 SET NX PX 的分布式战役锁，用于多实例部署。
// 持有期间每 ttl/3 续期一次，回合耗时不受 ttl 限制；进程崩溃后锁在 ttl 内自动失效。
type CampaignLock struct {
	client *Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewCampaignLock ttl 为单次续期的有效期
func NewCampaignLock(client *Client, ttl, wait time.Duration) *CampaignLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CampaignLock{client: client, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

// Acquire 获取锁，在 wait 时间内轮询；超时返回 ErrTurnInProgress
func (l *CampaignLock) Acquire(ctx context.Context, campaignID string) (func(), error) {
	ctx, span := tracer.Start(ctx, "redis.CampaignLock.Acquire")
	defer span.End()

	key := LockKey(campaignID)
	token := uuid.NewString()
	span.SetAttributes(attribute.String("lock.key", key))

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to acquire campaign lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, apperrors.ErrTurnInProgress.WithDetail(campaignID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	// 续期与释放不应受请求取消影响
	holdCtx, stopRenew := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		keepAlive(holdCtx, l.ttl/3, func(ctx context.Context) (bool, error) {
			n, err := extendScript.Run(ctx, l.client.rdb, []string{key}, token, l.ttl.Milliseconds()).Int64()
			return n == 1, err
		}, func() {
			logger.Warn(holdCtx, "campaign lock lost before release", "key", key)
		})
	}()

	release := func() {
		stopRenew()
		<-renewed
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client.rdb, []string{key}, token).Err()
	}
	return release, nil
}

// keepAlive 每隔 every 调用一次 extend，直到 ctx 结束或锁已不属于自己。
// 单次调用出错只记日志，下一轮再试；锁丢失时调用 onLost 后退出。
func keepAlive(ctx context.Context, every time.Duration, extend func(context.Context) (bool, error), onLost func()) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		held, err := extend(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "failed to extend campaign lock", "error", err.Error())
			continue
		}
		if !held {
			onLost()
			return
		}
	}
}

// LockKey 战役锁键
func LockKey(campaignID string) string {
	return fmt.Sprintf("lock:campaign:%s", campaignID)
}
