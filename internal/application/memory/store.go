package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"rpg-narrative-api/pkg/metrics"
)

const maxTopK = 100

// Store 回合记忆存储，战役 ID 即命名空间
type Store struct {
	ns      VectorNamespace
	backend string
}

// NewStore 创建回合记忆存储；backend 仅用于指标标签
func NewStore(ns VectorNamespace, backend string) *Store {
	if backend == "" {
		backend = "unknown"
	}
	return &Store{ns: ns, backend: backend}
}

// Backend 返回后端名称
func (s *Store) Backend() string {
	return s.backend
}

// Insert 写入（或覆盖）一个回合的向量条目
func (s *Store) Insert(ctx context.Context, campaignID string, entry Entry) error {
	return s.InsertBatch(ctx, campaignID, []Entry{entry})
}

// InsertBatch 批量写入，同一批内重复的 TurnID 以最后一条为准
func (s *Store) InsertBatch(ctx context.Context, campaignID string, entries []Entry) error {
	ctx, span := otel.Tracer("memory").Start(ctx, "memory.Insert")
	defer span.End()

	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return ErrNamespaceRequired
	}
	if len(entries) == 0 {
		return nil
	}

	deduped := make([]Entry, 0, len(entries))
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		e.TurnID = strings.TrimSpace(e.TurnID)
		if e.TurnID == "" {
			return ErrTurnIDRequired
		}
		if len(e.Vector) == 0 {
			return ErrEmptyVector
		}
		if i, ok := pos[e.TurnID]; ok {
			deduped[i] = e
			continue
		}
		pos[e.TurnID] = len(deduped)
		deduped = append(deduped, e)
	}

	span.SetAttributes(
		attribute.String("campaign_id", campaignID),
		attribute.Int("entries", len(deduped)),
		attribute.String("backend", s.backend),
	)

	if err := s.ns.Upsert(ctx, campaignID, deduped); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.MemoryInsertTotal.WithLabelValues(s.backend, "error").Inc()
		return fmt.Errorf("failed to upsert vector entries: %w", err)
	}
	metrics.MemoryInsertTotal.WithLabelValues(s.backend, "success").Add(float64(len(deduped)))
	return nil
}

// Query 返回与查询向量最相似的 topK 个条目，按相似度降序
//
// 空命名空间返回空切片与 nil 错误。
func (s *Store) Query(ctx context.Context, campaignID string, vector []float32, topK int) ([]Candidate, error) {
	ctx, span := otel.Tracer("memory").Start(ctx, "memory.Query")
	defer span.End()

	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, ErrNamespaceRequired
	}
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if topK <= 0 {
		return []Candidate{}, nil
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	span.SetAttributes(
		attribute.String("campaign_id", campaignID),
		attribute.Int("top_k", topK),
		attribute.String("backend", s.backend),
	)

	start := time.Now()
	hits, err := s.ns.Search(ctx, campaignID, vector, topK)
	metrics.MemoryQueryDuration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to search vector namespace: %w", err)
	}

	out := make([]Candidate, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.Entry.TurnID] {
			continue
		}
		seen[h.Entry.TurnID] = true
		out = append(out, Candidate{Entry: h.Entry, SimilarityScore: clampScore(h.Score)})
		if len(out) == topK {
			break
		}
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Delete 删除指定回合的条目，用于回合写入失败时的补偿
func (s *Store) Delete(ctx context.Context, campaignID string, turnIDs ...string) error {
	if strings.TrimSpace(campaignID) == "" {
		return ErrNamespaceRequired
	}
	if len(turnIDs) == 0 {
		return nil
	}
	if err := s.ns.Delete(ctx, campaignID, turnIDs); err != nil {
		return fmt.Errorf("failed to delete vector entries: %w", err)
	}
	return nil
}

// Clear 删除整个战役命名空间
func (s *Store) Clear(ctx context.Context, campaignID string) error {
	if strings.TrimSpace(campaignID) == "" {
		return ErrNamespaceRequired
	}
	if err := s.ns.Drop(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to drop vector namespace: %w", err)
	}
	return nil
}

func clampScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
