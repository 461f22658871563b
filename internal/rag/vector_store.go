package rag

import "context"

// VectorIndex 向量索引抽象。
// 查询接收原始文本, 由实现用自己的嵌入提供商向量化,
// 返回按距离升序排列的结果 (余弦距离, 越小越相似)。
type VectorIndex interface {
	// Upsert 写入或覆盖记录。Embedding 为空的记录由索引用默认模型补齐;
	// 混用外部向量与默认模型会导致向量空间不一致, 调用方自行保证。
	Upsert(ctx context.Context, records []Record) error

	// Query 检索与查询文本最相似的 topK 条记录, filter 为元数据等值过滤
	Query(ctx context.Context, text string, topK int, filter map[string]any) ([]RetrievalResult, error)

	// Delete 按记录 ID 删除
	Delete(ctx context.Context, ids []string) error

	// DeleteByFilter 按元数据过滤条件删除
	DeleteByFilter(ctx context.Context, filter map[string]any) error

	// Clear 清空索引
	Clear(ctx context.Context) error

	// Stats 返回索引统计信息
	Stats(ctx context.Context) (*CollectionStats, error)

	// DistanceMetric 返回索引使用的距离度量, 如 "cosine"
	DistanceMetric() string
}

// DistanceCosine 余弦距离度量标识
const DistanceCosine = "cosine"
