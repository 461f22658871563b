package rag

import "time"

// Document 原始文档, 仅在摄取期间存在。
type Document struct {
	Text     string
	Metadata map[string]any // 至少包含 source 标识
}

// Chunk 由 Chunker 从单个文档切出的片段。
// Metadata 继承父文档并追加 chunk_index / total_chunks。
type Chunk struct {
	Text        string
	Metadata    map[string]any
	ChunkIndex  int
	TotalChunks int
	ContentHash string // SHA-256
	TokenCount  int    // tiktoken 估算
}

// Record 写入向量索引的一条记录。
// Embedding 为空时由索引使用自身的默认嵌入模型计算,
// 与摄取侧 EmbeddingProvider 的模型不一致会导致向量空间混用,
// 这是文档化的风险, 索引不做调和。
type Record struct {
	ID        string // 集合内唯一; 相同 ID 再次写入为覆盖
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// RetrievalResult 一次相似度查询返回的条目, 按距离升序排列。
// Distance 仅在同一集合/同一距离度量下可比。
type RetrievalResult struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// ScoredChunk 经过阈值过滤后的检索结果。
// Score = 1 - Distance, 仅在余弦距离下成立。
type ScoredChunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Source 返回结果的来源标识, 缺失时为 "unknown"。
func (c *ScoredChunk) Source() string {
	if c.Metadata != nil {
		if s, ok := c.Metadata["source"].(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// SourceChunk 回答引用的单个分块, 按检索排序逐块返回, 不做来源去重。
type SourceChunk struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// CollectionStats 集合统计信息。
type CollectionStats struct {
	Name     string         `json:"name"`
	Count    int64          `json:"count"`
	Metadata map[string]any `json:"metadata"`
}

// KnowledgeDocument 已摄取文档的持久化记录。
type KnowledgeDocument struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	Source   string `json:"source" gorm:"size:500;not null;uniqueIndex"`
	FileName string `json:"fileName" gorm:"size:500"`

	ContentType string `json:"contentType" gorm:"size:100"`
	Content     string `json:"content" gorm:"type:text"`
	FileSize    int64  `json:"fileSize"`
	FileHash    string `json:"fileHash" gorm:"size:64;index"` // SHA-256

	// 处理状态: pending, processing, indexed, failed
	Status       string `json:"status" gorm:"size:50;not null;default:pending"`
	ChunkCount   int    `json:"chunkCount" gorm:"default:0"`
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`

	MetadataRaw map[string]any `json:"metadata" gorm:"type:jsonb;serializer:json"`

	ProcessedAt *time.Time `json:"processedAt"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// 文档处理状态
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusIndexed    = "indexed"
	DocStatusFailed     = "failed"
)
