package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// EventLog 按战役保存最近的回合事件，超出容量的旧事件被裁剪
type EventLog struct {
	client   *Client
	capacity int64
}

// NewEventLog capacity 为每个战役保留的事件数
func NewEventLog(client *Client, capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventLog{client: client, capacity: int64(capacity)}
}

// Append 追加一条事件
func (l *EventLog) Append(ctx context.Context, campaignID string, event any) error {
	ctx, span := tracer.Start(ctx, "redis.EventLog.Append")
	defer span.End()

	key := EventLogKey(campaignID)
	span.SetAttributes(attribute.String("event_log.key", key))

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := l.client.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, l.capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent 返回最近 limit 条事件，新事件在前
func (l *EventLog) Recent(ctx context.Context, campaignID string, limit int) ([]json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "redis.EventLog.Recent")
	defer span.End()

	if limit <= 0 || int64(limit) > l.capacity {
		limit = int(l.capacity)
	}
	vals, err := l.client.rdb.LRange(ctx, EventLogKey(campaignID), 0, int64(limit)-1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}

// Clear 删除战役的事件记录
func (l *EventLog) Clear(ctx context.Context, campaignID string) error {
	return l.client.rdb.Del(ctx, EventLogKey(campaignID)).Err()
}

// EventLogKey 战役事件列表键，不在战役缓存前缀下，缓存失效不会清掉它
func EventLogKey(campaignID string) string {
	return fmt.Sprintf("events:campaign:%s", campaignID)
}
