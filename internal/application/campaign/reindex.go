package campaign

import (
	"context"
	"fmt"
	"strings"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/pkg/logger"
)

const defaultReindexBatch = 32

// BatchEmbedder 批量向量化
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Reindexer 用已持久化的回合重建战役的向量记忆
//
// 按 TurnID upsert，重复执行结果一致。
type Reindexer struct {
	turns     repository.TurnRepository
	memory    *memory.Store
	embedder  BatchEmbedder
	batchSize int
}

// NewReindexer 创建重建器
func NewReindexer(turns repository.TurnRepository, store *memory.Store, embedder BatchEmbedder, batchSize int) *Reindexer {
	if batchSize <= 0 {
		batchSize = defaultReindexBatch
	}
	return &Reindexer{turns: turns, memory: store, embedder: embedder, batchSize: batchSize}
}

// Reindex 返回写入的条目数
func (r *Reindexer) Reindex(ctx context.Context, campaignID string) (int, error) {
	ctx, span := tracer.Start(ctx, "campaign.Reindex")
	defer span.End()

	if strings.TrimSpace(campaignID) == "" {
		return 0, fmt.Errorf("campaign_id is required")
	}
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, campaignID)

	turns, err := r.turns.ListAll(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(turns); start += r.batchSize {
		end := start + r.batchSize
		if end > len(turns) {
			end = len(turns)
		}
		batch := turns[start:end]

		texts := make([]string, len(batch))
		for i, t := range batch {
			texts[i] = t.MemoryText()
		}
		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			span.RecordError(err)
			return written, fmt.Errorf("failed to embed turns: %w", err)
		}
		if len(vecs) != len(batch) {
			return written, fmt.Errorf("embedder returned %d vectors for %d turns", len(vecs), len(batch))
		}

		entries := make([]memory.Entry, len(batch))
		for i, t := range batch {
			entries[i] = memory.Entry{
				TurnID: t.ID,
				Vector: vecs[i],
				Metadata: memory.Metadata{
					SequenceIndex: t.SequenceIndex,
					Timestamp:     t.Timestamp,
					IsCombatTurn:  t.IsCombatTurn,
				},
			}
		}
		if err := r.memory.InsertBatch(ctx, campaignID, entries); err != nil {
			span.RecordError(err)
			return written, err
		}
		written += len(entries)
	}

	logger.Info(ctx, "campaign memory reindexed", "entries", written)
	return written, nil
}
