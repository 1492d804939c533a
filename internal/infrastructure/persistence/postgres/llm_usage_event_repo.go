package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/internal/domain/entity"
)

// tokenSum 流水中两类 token 之和；旧行可能为 NULL
const tokenSum = "COALESCE(SUM(COALESCE(tokens_prompt,0) + COALESCE(tokens_completion,0)),0)"

// LLMUsageEventRepository 模型用量流水，只追加
type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

// Create 追加一条流水。没有战役归属的调用（如重建索引）也照常记录。
func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create",
		trace.WithAttributes(
			attribute.String("llm.provider", event.Provider),
			attribute.String("llm.model", event.Model),
		))
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("record llm usage for campaign %q: %w", event.CampaignID, err)
	}
	return nil
}

// GetTokenUsage 统计战役在 [from, to) 内消耗的 token
func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, campaignID string, from, to time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.GetTokenUsage",
		trace.WithAttributes(attribute.String("campaign_id", campaignID)))
	defer span.End()

	var used int64
	err := getDB(ctx, r.client.db).
		Model(&entity.LLMUsageEvent{}).
		Where("campaign_id = ?", campaignID).
		Where("created_at >= ? AND created_at < ?", from, to).
		Select(tokenSum).
		Scan(&used).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("sum llm usage for campaign %q: %w", campaignID, err)
	}
	span.SetAttributes(attribute.Int64("llm.tokens_used", used))
	return used, nil
}
