// Package redis 提供战役读缓存、向量缓存、回合锁、限流与事件归档
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"rpg-narrative-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// invalidateBatch 每轮 SCAN 的建议数量
const invalidateBatch = 100

// Cache 读穿缓存。值以 JSON 存储，同一键的并发未命中只触发一次加载。
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetOrLoadSafe 命中时直接返回；未命中时调用 loader 并回填。
// loader 失败不写缓存，回填失败只记日志。
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if val, ok, err := c.lookup(ctx, key); err != nil {
		span.RecordError(err)
		return nil, err
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		// 排队期间可能已被其他请求回填
		if val, ok, _ := c.lookup(ctx, key); ok {
			return val, nil
		}

		data, err := loader()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache value: %w", err)
		}
		if err := c.client.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
			logger.Warn(ctx, "failed to populate cache", "key", key, "error", err.Error())
		}
		return raw, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return val, true, nil
	case IsNil(err):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// InvalidateCampaign 删除战役前缀下的全部缓存键，分批 SCAN 后 UNLINK
func (c *Cache) InvalidateCampaign(ctx context.Context, campaignID string) error {
	pattern := CampaignKeyPrefix(campaignID) + "*"
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidateCampaign",
		trace.WithAttributes(
			attribute.String("campaign_id", campaignID),
			attribute.String("cache.pattern", pattern),
		))
	defer span.End()

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, pattern, invalidateBatch).Result()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to scan campaign keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.rdb.Unlink(ctx, keys...).Err(); err != nil {
				span.RecordError(err)
				return fmt.Errorf("failed to unlink campaign keys: %w", err)
			}
			removed += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	span.SetAttributes(attribute.Int("cache.invalidated_count", removed))
	return nil
}

// CampaignKeyPrefix 战役缓存键前缀；InvalidateCampaign 清理该前缀
func CampaignKeyPrefix(campaignID string) string {
	return fmt.Sprintf("campaign:%s:", campaignID)
}

// CampaignViewKey 战役视图缓存键
func CampaignViewKey(campaignID string) string {
	return CampaignKeyPrefix(campaignID) + "view"
}

// EmbeddingKey 文本向量缓存键，按模型区分；不随战役失效
func EmbeddingKey(model, textHash string) string {
	return fmt.Sprintf("embedding:%s:%s", model, textHash)
}
