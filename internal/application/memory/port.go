package memory

import "context"

// VectorNamespace 应用层对向量存储的最小依赖（port）
//
// 实现必须保证：
//   - Upsert 以 TurnID 去重，重复写入后只保留最后一次；
//   - Search 只在 namespace 内部检索，返回按相似度降序的结果，Score 为余弦相似度；
//   - Upsert 返回后的写入对随后的 Search 可见。
type VectorNamespace interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	Search(ctx context.Context, namespace string, vector []float32, topK int) ([]Hit, error)
	Delete(ctx context.Context, namespace string, turnIDs []string) error
	Drop(ctx context.Context, namespace string) error
}

// Hit 向量后端返回的原始命中
type Hit struct {
	Entry Entry
	Score float64
}
