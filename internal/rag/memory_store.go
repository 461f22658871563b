package rag

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore 进程内向量索引, 用于测试与无外部依赖的本地开发。
// 余弦距离精确计算, 不做近似检索。
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]Record
	embedder EmbeddingProvider
	name     string
}

// NewMemoryStore 创建内存向量索引
func NewMemoryStore(name string, embedder EmbeddingProvider) *MemoryStore {
	if name == "" {
		name = "memory"
	}
	return &MemoryStore{
		records:  make(map[string]Record),
		embedder: embedder,
		name:     name,
	}
}

// Upsert 写入或覆盖记录
func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	toInsert := make([]Record, len(records))
	copy(toInsert, records)

	var missIdx []int
	var missTexts []string
	for i, rec := range toInsert {
		if len(rec.Embedding) == 0 {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, rec.Text)
		}
	}
	if len(missTexts) > 0 {
		vectors, err := s.embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return err
		}
		for j, idx := range missIdx {
			toInsert[idx].Embedding = vectors[j]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range toInsert {
		s.records[rec.ID] = rec
	}
	return nil
}

// Query 全量扫描后按余弦距离升序返回前 topK 条
func (s *MemoryStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]RetrievalResult, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]RetrievalResult, 0, len(s.records))
	for _, rec := range s.records {
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		results = append(results, RetrievalResult{
			Text:     rec.Text,
			Metadata: rec.Metadata,
			Distance: cosineDistance(vector, rec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete 按记录 ID 删除
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// DeleteByFilter 按元数据过滤条件删除
func (s *MemoryStore) DeleteByFilter(_ context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return NewValidationError("filter", "过滤条件不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if matchesFilter(rec.Metadata, filter) {
			delete(s.records, id)
		}
	}
	return nil
}

// Clear 清空索引
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

// Stats 返回索引统计信息
func (s *MemoryStore) Stats(_ context.Context) (*CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &CollectionStats{
		Name:  s.name,
		Count: int64(len(s.records)),
		Metadata: map[string]any{
			"distance": DistanceCosine,
			"backend":  "memory",
		},
	}, nil
}

// DistanceMetric 返回距离度量
func (s *MemoryStore) DistanceMetric() string { return DistanceCosine }

func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// cosineDistance 余弦距离 = 1 - 余弦相似度, 零向量按最远处理
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
