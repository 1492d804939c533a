package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/pkg/metrics"
)

var tracer = otel.Tracer("embedding")

// Cache 向量缓存，Redis Cache 满足该接口
type Cache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// KeyFunc 由模型名与文本哈希生成缓存键
type KeyFunc func(model, textHash string) string

// TextEmbedder 将 Eino Embedder 收敛为单文本 float32 接口
type TextEmbedder struct {
	inner embedding.Embedder
	model string

	cache    Cache
	cacheKey KeyFunc
	cacheTTL time.Duration
}

// NewTextEmbedder 创建文本向量化器
func NewTextEmbedder(inner embedding.Embedder, model string) *TextEmbedder {
	return &TextEmbedder{inner: inner, model: model}
}

// WithCache 启用向量缓存
func (e *TextEmbedder) WithCache(cache Cache, key KeyFunc, ttl time.Duration) *TextEmbedder {
	e.cache = cache
	e.cacheKey = key
	e.cacheTTL = ttl
	return e
}

// Embed 向量化单条文本
func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.Embed",
		trace.WithAttributes(
			attribute.String("embedding.model", e.model),
			attribute.Int("embedding.text_len", len(text)),
		))
	defer span.End()

	if e.cache == nil {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return vec, err
	}

	loaded := false
	raw, err := e.cache.GetOrLoadSafe(ctx, e.cacheKey(e.model, HashText(text)), e.cacheTTL, func() (interface{}, error) {
		loaded = true
		return e.embedOne(ctx, text)
	})
	if err != nil {
		// 缓存不可用时直接调用模型
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		return e.embedOne(ctx, text)
	}
	if loaded {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	}
	span.SetAttributes(attribute.Bool("embedding.cache_hit", !loaded))

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vec, nil
}

// EmbedBatch 批量向量化，不经过缓存
func (e *TextEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "embedding.EmbedBatch",
		trace.WithAttributes(attribute.Int("embedding.batch_size", len(texts))))
	defer span.End()

	v64, err := e.inner.EmbedStrings(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(v64) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(v64), len(texts))
	}
	out := make([][]float32, len(v64))
	for i, vec := range v64 {
		out[i] = toFloat32(vec)
	}
	return out, nil
}

func (e *TextEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	v64, err := e.inner.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 || len(v64[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return toFloat32(v64[0]), nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(x)
	}
	return out
}

// HashText 计算文本摘要，作为缓存键的一部分
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
