// Package memory 实现按战役隔离的回合向量记忆
//
// 每个战役对应一个独立的向量命名空间；相似度统一为余弦相似度，取值范围 [-1, 1]，
// 数值越大越相似。空命名空间返回空结果而不是错误。
package memory

import (
	"time"
)

// Metadata 向量条目元数据
type Metadata struct {
	SequenceIndex int       `json:"sequence_index"`
	Timestamp     time.Time `json:"timestamp"`
	IsCombatTurn  bool      `json:"is_combat_turn"`
}

// Entry 由回合派生的向量条目，以 TurnID 为主键
type Entry struct {
	TurnID   string    `json:"turn_id"`
	Vector   []float32 `json:"-"`
	Metadata Metadata  `json:"metadata"`
}

// Candidate 单次检索内的候选结果，不落库
type Candidate struct {
	Entry           Entry   `json:"entry"`
	SimilarityScore float64 `json:"similarity_score"`
	RerankScore     float64 `json:"rerank_score"`
}
