// Package worker 实现 memory-worker 的流消息处理
package worker

import (
	"context"
	"fmt"
	"strings"

	"rpg-narrative-api/internal/infrastructure/messaging"
	"rpg-narrative-api/pkg/logger"
)

// Reindexer 重建战役向量记忆
type Reindexer interface {
	Reindex(ctx context.Context, campaignID string) (int, error)
}

// EventArchive 回合事件归档
type EventArchive interface {
	Append(ctx context.Context, campaignID string, event any) error
}

// CacheInvalidator 战役缓存失效
type CacheInvalidator interface {
	InvalidateCampaign(ctx context.Context, campaignID string) error
}

// Handlers 流消息处理器
type Handlers struct {
	reindexer Reindexer
	archive   EventArchive
	cache     CacheInvalidator
}

// NewHandlers cache 可为空
func NewHandlers(reindexer Reindexer, archive EventArchive, cache CacheInvalidator) *Handlers {
	return &Handlers{reindexer: reindexer, archive: archive, cache: cache}
}

// Register 把处理器挂到对应的消费者上
func (h *Handlers) Register(turnEvents, reindexJobs *messaging.Consumer) {
	if turnEvents != nil {
		turnEvents.RegisterHandler(messaging.TypeTurnCompleted, h.HandleTurnCompleted)
	}
	if reindexJobs != nil {
		reindexJobs.RegisterHandler(messaging.TypeMemoryReindex, h.HandleMemoryReindex)
	}
}

// HandleTurnCompleted 归档回合完成事件
func (h *Handlers) HandleTurnCompleted(ctx context.Context, msg *messaging.Message) error {
	var evt messaging.TurnCompletedMessage
	if err := msg.Decode(&evt); err != nil {
		return fmt.Errorf("failed to decode turn completed event: %w", err)
	}
	if strings.TrimSpace(evt.CampaignID) == "" {
		evt.CampaignID = msg.CampaignID
	}
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, evt.CampaignID)
	ctx = logger.WithContext(ctx, logger.TurnIDKey, evt.TurnID)

	if err := h.archive.Append(ctx, evt.CampaignID, &evt); err != nil {
		return err
	}
	if evt.IsCombatEnding {
		logger.Info(ctx, "combat ended", "reason", evt.EndReason, "sequence_index", evt.SequenceIndex)
	}
	if h.cache != nil {
		if err := h.cache.InvalidateCampaign(ctx, evt.CampaignID); err != nil {
			logger.Warn(ctx, "failed to invalidate campaign cache", "error", err.Error())
		}
	}
	return nil
}

// HandleMemoryReindex 执行重建索引任务
func (h *Handlers) HandleMemoryReindex(ctx context.Context, msg *messaging.Message) error {
	var job messaging.MemoryReindexMessage
	if err := msg.Decode(&job); err != nil {
		return fmt.Errorf("failed to decode reindex job: %w", err)
	}
	if strings.TrimSpace(job.CampaignID) == "" {
		job.CampaignID = msg.CampaignID
	}
	if strings.TrimSpace(job.CampaignID) == "" {
		return fmt.Errorf("reindex job without campaign_id")
	}
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, job.CampaignID)

	n, err := h.reindexer.Reindex(ctx, job.CampaignID)
	if err != nil {
		return err
	}
	logger.Info(ctx, "reindex job done", "entries", n, "reason", job.Reason)
	return nil
}
