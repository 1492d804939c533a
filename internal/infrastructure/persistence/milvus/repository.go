// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/pkg/metrics"
)

// Repository 回合记忆向量仓储，实现 memory.VectorNamespace
type Repository struct {
	client    *Client
	dimension int
}

var _ memory.VectorNamespace = (*Repository)(nil)

// NewRepository 创建向量仓储
func NewRepository(client *Client, dimension int) *Repository {
	return &Repository{client: client, dimension: dimension}
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)
	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.index.m,
		r.client.index.efConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsureCollection 确保 turn_memories 集合与索引可用（不存在则创建）
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}

	exists, err := r.client.hasCollection(ctx, CollectionTurnMemories)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, TurnMemoriesSchema(r.dimension)); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx, CollectionTurnMemories); err != nil {
			return err
		}
	}
	return r.client.loadCollection(ctx, CollectionTurnMemories)
}

func (r *Repository) ensurePartition(ctx context.Context, collName, partition string) error {
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if has {
		return nil
	}
	if err := r.client.milvus.CreatePartition(ctx, collName, partition); err != nil {
		return fmt.Errorf("failed to create partition: %w", err)
	}
	return nil
}

// Upsert 按 turn_id 写入或覆盖
func (r *Repository) Upsert(ctx context.Context, namespace string, entries []memory.Entry) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("campaign_id", namespace),
			attribute.Int("count", len(entries)),
		))
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionTurnMemories)
	partition := PartitionName(namespace)
	if err := r.ensurePartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return err
	}

	n := len(entries)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	campaigns := make([]string, n)
	seqs := make([]int64, n)
	timestamps := make([]int64, n)
	combats := make([]bool, n)
	for i, e := range entries {
		if len(e.Vector) != r.dimension {
			return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(e.Vector), r.dimension)
		}
		ids[i] = e.TurnID
		vectors[i] = e.Vector
		campaigns[i] = namespace
		seqs[i] = int64(e.Metadata.SequenceIndex)
		timestamps[i] = e.Metadata.Timestamp.UnixMilli()
		combats[i] = e.Metadata.IsCombatTurn
	}

	_, err := r.client.milvus.Upsert(ctx, collName, partition,
		entity.NewColumnVarChar(fieldTurnID, ids),
		entity.NewColumnFloatVector(fieldVector, r.dimension, vectors),
		entity.NewColumnVarChar(fieldCampaignID, campaigns),
		entity.NewColumnInt64(fieldSequenceIndex, seqs),
		entity.NewColumnInt64(fieldTimestamp, timestamps),
		entity.NewColumnBool(fieldIsCombat, combats),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert turn memories: %w", err)
	}
	return nil
}

// Search 在战役分区内检索；使用强一致性，保证刚写入的条目可见
func (r *Repository) Search(ctx context.Context, namespace string, vector []float32, topK int) ([]memory.Hit, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("campaign_id", namespace),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	collName := r.client.CollectionName(CollectionTurnMemories)
	partition := PartitionName(namespace)

	// 新战役尚未建分区时直接返回空结果，避免 Milvus 报 partition not found
	if has, err := r.client.milvus.HasPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return []memory.Hit{}, nil
	}

	ef := r.client.index.searchEf
	if ef < topK {
		ef = topK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partition},
		fmt.Sprintf(`%s == "%s"`, fieldCampaignID, escapeExpr(namespace)),
		[]string{fieldTurnID, fieldSequenceIndex, fieldTimestamp, fieldIsCombat},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldVector,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	metrics.MilvusSearchDuration.WithLabelValues(CollectionTurnMemories).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(CollectionTurnMemories, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(CollectionTurnMemories, "success").Inc()

	hits := make([]memory.Hit, 0, topK)
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			var e memory.Entry
			if col, ok := result.Fields.GetColumn(fieldTurnID).(*entity.ColumnVarChar); ok {
				e.TurnID = col.Data()[i]
			} else if col, ok := result.IDs.(*entity.ColumnVarChar); ok {
				e.TurnID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn(fieldSequenceIndex).(*entity.ColumnInt64); ok {
				e.Metadata.SequenceIndex = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn(fieldTimestamp).(*entity.ColumnInt64); ok {
				e.Metadata.Timestamp = time.UnixMilli(col.Data()[i]).UTC()
			}
			if col, ok := result.Fields.GetColumn(fieldIsCombat).(*entity.ColumnBool); ok {
				e.Metadata.IsCombatTurn = col.Data()[i]
			}
			// COSINE 度量下 Milvus 返回的就是余弦相似度
			hits = append(hits, memory.Hit{Entry: e, Score: float64(result.Scores[i])})
		}
	}

	memory.SortHits(hits)
	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// Delete 删除指定回合
func (r *Repository) Delete(ctx context.Context, namespace string, turnIDs []string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(turnIDs) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.Delete",
		trace.WithAttributes(attribute.String("campaign_id", namespace), attribute.Int("count", len(turnIDs))))
	defer span.End()

	collName := r.client.CollectionName(CollectionTurnMemories)
	partition := PartitionName(namespace)
	if has, err := r.client.milvus.HasPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	quoted := make([]string, 0, len(turnIDs))
	for _, id := range turnIDs {
		quoted = append(quoted, `"`+escapeExpr(id)+`"`)
	}
	expr := fmt.Sprintf("%s in [%s]", fieldTurnID, strings.Join(quoted, ","))
	if err := r.client.milvus.Delete(ctx, collName, partition, expr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete turn memories: %w", err)
	}
	return nil
}

// Drop 删除战役分区
func (r *Repository) Drop(ctx context.Context, namespace string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Drop",
		trace.WithAttributes(attribute.String("campaign_id", namespace)))
	defer span.End()

	collName := r.client.CollectionName(CollectionTurnMemories)
	partition := PartitionName(namespace)
	has, err := r.client.milvus.HasPartition(ctx, collName, partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}

	// 已加载的分区需要先释放才能删除
	_ = r.client.milvus.ReleasePartitions(ctx, collName, []string{partition})
	if err := r.client.milvus.DropPartition(ctx, collName, partition); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}

func escapeExpr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
