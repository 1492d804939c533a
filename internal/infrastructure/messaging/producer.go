package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/pkg/logger"
)

var msgTracer = otel.Tracer("messaging")

const defaultMaxLen = 100000

// Producer 写入流时按近似 MAXLEN 修剪
type Producer struct {
	client *redis.Client
	maxLen int64
}

func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish 返回流内消息 ID。调用方的 trace context 与 request_id 写进信封。
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := msgTracer.Start(ctx, "producer.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.type", msg.Type),
			attribute.String("campaign_id", msg.CampaignID),
		))
	defer span.End()

	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok && rid != "" {
		msg.SetMeta(metaRequestID, rid)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to encode %s message: %w", msg.Type, err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to append to %s: %w", stream, err)
	}
	span.SetAttributes(attribute.String("stream.message_id", id))
	return id, nil
}

// TurnCompletedMessage 回合提交后发布，归档与后续处理消费
type TurnCompletedMessage struct {
	CampaignID     string    `json:"campaign_id"`
	TurnID         string    `json:"turn_id"`
	SequenceIndex  int       `json:"sequence_index"`
	ActionKind     string    `json:"action_kind"`
	IsCombatTurn   bool      `json:"is_combat_turn"`
	IsCombatEnding bool      `json:"is_combat_ending"`
	EndReason      string    `json:"end_reason,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// PublishTurnCompleted 消息 ID 取回合 ID
func (p *Producer) PublishTurnCompleted(ctx context.Context, evt *TurnCompletedMessage) (string, error) {
	msg, err := NewMessage(evt.TurnID, TypeTurnCompleted, evt.CampaignID, evt)
	if err != nil {
		return "", err
	}
	msg.SetMeta("sequence_index", strconv.Itoa(evt.SequenceIndex))
	return p.Publish(ctx, StreamTurnCompleted, msg)
}

// MemoryReindexMessage 请求按回合历史重建战役的向量记忆
type MemoryReindexMessage struct {
	CampaignID  string    `json:"campaign_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func (p *Producer) PublishMemoryReindex(ctx context.Context, job *MemoryReindexMessage) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeMemoryReindex, job.CampaignID, job)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamMemoryReindex, msg)
}
