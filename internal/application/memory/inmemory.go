package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryNamespace 进程内向量命名空间，适用于单机部署与测试
type InMemoryNamespace struct {
	mu     sync.RWMutex
	spaces map[string]map[string]Entry
}

// NewInMemoryNamespace 创建进程内向量命名空间
func NewInMemoryNamespace() *InMemoryNamespace {
	return &InMemoryNamespace{spaces: make(map[string]map[string]Entry)}
}

func (m *InMemoryNamespace) Upsert(_ context.Context, namespace string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	space, ok := m.spaces[namespace]
	if !ok {
		space = make(map[string]Entry)
		m.spaces[namespace] = space
	}
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		space[e.TurnID] = e
	}
	return nil
}

func (m *InMemoryNamespace) Search(_ context.Context, namespace string, vector []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	space := m.spaces[namespace]
	if len(space) == 0 || topK <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(space))
	for _, e := range space {
		hits = append(hits, Hit{Entry: e, Score: Cosine(vector, e.Vector)})
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *InMemoryNamespace) Delete(_ context.Context, namespace string, turnIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	space := m.spaces[namespace]
	for _, id := range turnIDs {
		delete(space, id)
	}
	return nil
}

func (m *InMemoryNamespace) Drop(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, namespace)
	return nil
}

// sortHits 相似度降序；相同分数按 sequence_index 降序、turn_id 升序，保证结果稳定
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Entry.Metadata.SequenceIndex != hits[j].Entry.Metadata.SequenceIndex {
			return hits[i].Entry.Metadata.SequenceIndex > hits[j].Entry.Metadata.SequenceIndex
		}
		return hits[i].Entry.TurnID < hits[j].Entry.TurnID
	})
}

// SortHits 供其他后端复用同一排序规则
func SortHits(hits []Hit) {
	sortHits(hits)
}
