// Package rerank 对向量召回的候选做二次打分
//
// rerank_score = Ws*sim + Wr*recency + Wc*combat，三个信号都归一化到 [0, 1]：
//   - sim = (cosine + 1) / 2
//   - recency = 0.5 ^ (distance / half_life)，distance 为与当前回合的 sequence_index 差
//   - combat = 1（候选是战斗回合且当前行动与战斗相关），否则 0
//
// 同分时 sequence_index 大的在前，再按 turn_id 升序，输出完全由输入决定。
package rerank

import (
	"math"
	"sort"

	"rpg-narrative-api/internal/application/memory"
)

// Weights 打分权重，均可配置
type Weights struct {
	Similarity      float64 `json:"similarity_weight"`
	Recency         float64 `json:"recency_weight"`
	Combat          float64 `json:"combat_weight"`
	RecencyHalfLife float64 `json:"recency_half_life"`
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		Similarity:      1.0,
		Recency:         0.3,
		Combat:          0.2,
		RecencyHalfLife: 5,
	}
}

// Query 当前回合信息
type Query struct {
	CurrentSequence int
	CombatAction    bool
	Window          int
}

// Reranker 无状态，可并发使用
type Reranker struct {
	w Weights
}

// New 创建 Reranker，负权重按 0 处理，half-life 非正时取默认值
func New(w Weights) *Reranker {
	w.Similarity = math.Max(w.Similarity, 0)
	w.Recency = math.Max(w.Recency, 0)
	w.Combat = math.Max(w.Combat, 0)
	if w.RecencyHalfLife <= 0 {
		w.RecencyHalfLife = DefaultWeights().RecencyHalfLife
	}
	return &Reranker{w: w}
}

// Weights 返回生效的权重
func (r *Reranker) Weights() Weights {
	return r.w
}

// Similarity 把余弦相似度映射到 [0, 1]
func Similarity(cosine float64) float64 {
	s := (cosine + 1) / 2
	return math.Min(math.Max(s, 0), 1)
}

// Recency 距离越远分数越低，距离 0 时为 1
func (r *Reranker) Recency(current, seq int) float64 {
	d := current - seq
	if d < 0 {
		d = 0
	}
	return math.Pow(0.5, float64(d)/r.w.RecencyHalfLife)
}

// Score 计算单个候选的 rerank_score
func (r *Reranker) Score(c memory.Candidate, q Query) float64 {
	combat := 0.0
	if q.CombatAction && c.Entry.Metadata.IsCombatTurn {
		combat = 1
	}
	return r.w.Similarity*Similarity(c.SimilarityScore) +
		r.w.Recency*r.Recency(q.CurrentSequence, c.Entry.Metadata.SequenceIndex) +
		r.w.Combat*combat
}

// Rerank 打分、排序并截断到 Window；入参切片不会被修改
func (r *Reranker) Rerank(candidates []memory.Candidate, q Query) []memory.Candidate {
	if q.Window <= 0 || len(candidates) == 0 {
		return []memory.Candidate{}
	}

	scored := make([]memory.Candidate, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].RerankScore = r.Score(scored[i], q)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		if a.Entry.Metadata.SequenceIndex != b.Entry.Metadata.SequenceIndex {
			return a.Entry.Metadata.SequenceIndex > b.Entry.Metadata.SequenceIndex
		}
		return a.Entry.TurnID < b.Entry.TurnID
	})

	if len(scored) > q.Window {
		scored = scored[:q.Window]
	}
	return scored
}
