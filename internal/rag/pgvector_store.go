package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backend/internal/logger"
)

// chunkEmbedding pgvector 后端的存储行。
// 表结构由 chunkEmbeddingDDL 按配置维度创建, 不走 AutoMigrate,
// 否则列的向量维度无法跟随 vector_dimension 配置。
type chunkEmbedding struct {
	ID         string `gorm:"primaryKey"`
	Collection string
	Content    string
	Metadata   string
	Embedding  pgvector.Vector
}

func (chunkEmbedding) TableName() string { return "chunk_embeddings" }

// chunkEmbeddingDDL 返回建表语句, 向量列维度与构造参数一致
func chunkEmbeddingDDL(dimension int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
	id varchar(191) PRIMARY KEY,
	collection varchar(128) NOT NULL,
	content text,
	metadata jsonb,
	embedding vector(%d)
)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_collection ON chunk_embeddings (collection)",
	}
}

// PgVectorStore 基于 PostgreSQL + pgvector 扩展的向量索引实现。
// 与业务数据同库, 适合不想单独运维向量数据库的部署。
type PgVectorStore struct {
	db         *gorm.DB
	collection string
	dimension  int
	embedder   EmbeddingProvider
	log        *zap.Logger
}

// NewPgVectorStore 创建 pgvector 向量索引并确保扩展与表结构就绪
func NewPgVectorStore(db *gorm.DB, collection string, dimension int, embedder EmbeddingProvider) (*PgVectorStore, error) {
	if db == nil {
		return nil, NewConfigError("pgvector", "缺少数据库连接")
	}
	if collection == "" {
		return nil, NewConfigError("pgvector", "缺少 collection")
	}
	if dimension <= 0 {
		return nil, NewConfigError("pgvector", fmt.Sprintf("vector_dimension 必须为正数, 实际 %d", dimension))
	}
	if embedder == nil {
		return nil, NewConfigError("pgvector", "缺少嵌入提供商")
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("启用 pgvector 扩展失败: %w", err)
	}
	for _, stmt := range chunkEmbeddingDDL(dimension) {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("创建向量表失败: %w", err)
		}
	}

	return &PgVectorStore{
		db:         db,
		collection: collection,
		dimension:  dimension,
		embedder:   embedder,
		log:        logger.Named("pgvector_store"),
	}, nil
}

// Upsert 写入或覆盖记录, 按主键冲突覆盖
func (s *PgVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.fillEmbeddings(ctx, records); err != nil {
		return err
	}

	rows := make([]chunkEmbedding, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != s.dimension {
			return NewValidationError("embedding",
				fmt.Sprintf("向量维度不匹配: 期望 %d, 实际 %d (记录 %s)", s.dimension, len(rec.Embedding), rec.ID))
		}
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("序列化元数据失败: %w", err)
		}
		rows = append(rows, chunkEmbedding{
			ID:         rec.ID,
			Collection: s.collection,
			Content:    rec.Text,
			Metadata:   string(metadata),
			Embedding:  pgvector.NewVector(rec.Embedding),
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(rows, 200).Error
	if err != nil {
		return fmt.Errorf("写入向量记录失败: %w", err)
	}
	s.log.Debug("写入向量记录", zap.Int("count", len(rows)))
	return nil
}

// Query 用余弦距离算子检索, 结果按距离升序排列
func (s *PgVectorStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]RetrievalResult, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	type row struct {
		Content  string
		Metadata string
		Distance float64
	}

	query := s.db.WithContext(ctx).
		Model(&chunkEmbedding{}).
		Select("content, metadata, embedding <=> ? AS distance", pgvector.NewVector(vector)).
		Where("collection = ?", s.collection)

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("序列化过滤条件失败: %w", err)
		}
		query = query.Where("metadata @> ?", string(filterJSON))
	}

	var rows []row
	if err := query.Order("distance ASC").Limit(topK).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	results := make([]RetrievalResult, 0, len(rows))
	for _, r := range rows {
		var metadata map[string]any
		if r.Metadata != "" {
			_ = json.Unmarshal([]byte(r.Metadata), &metadata)
		}
		results = append(results, RetrievalResult{
			Text:     r.Content,
			Metadata: metadata,
			Distance: r.Distance,
		})
	}
	return results, nil
}

// Delete 按记录 ID 删除
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("collection = ? AND id IN ?", s.collection, ids).
		Delete(&chunkEmbedding{}).Error
}

// DeleteByFilter 按元数据过滤条件删除
func (s *PgVectorStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	if len(filter) == 0 {
		return NewValidationError("filter", "过滤条件不能为空")
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("序列化过滤条件失败: %w", err)
	}
	return s.db.WithContext(ctx).
		Where("collection = ? AND metadata @> ?", s.collection, string(filterJSON)).
		Delete(&chunkEmbedding{}).Error
}

// Clear 清空当前集合
func (s *PgVectorStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("collection = ?", s.collection).
		Delete(&chunkEmbedding{}).Error
}

// Stats 返回集合统计信息
func (s *PgVectorStore) Stats(ctx context.Context) (*CollectionStats, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&chunkEmbedding{}).
		Where("collection = ?", s.collection).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("统计向量记录失败: %w", err)
	}
	return &CollectionStats{
		Name:  s.collection,
		Count: count,
		Metadata: map[string]any{
			"distance": DistanceCosine,
			"backend":  "pgvector",
		},
	}, nil
}

// DistanceMetric 返回距离度量, <=> 算子即余弦距离
func (s *PgVectorStore) DistanceMetric() string { return DistanceCosine }

func (s *PgVectorStore) fillEmbeddings(ctx context.Context, records []Record) error {
	var missIdx []int
	var missTexts []string
	for i, rec := range records {
		if len(rec.Embedding) == 0 {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, rec.Text)
		}
	}
	if len(missTexts) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return err
	}
	for j, idx := range missIdx {
		records[idx].Embedding = vectors[j]
	}
	return nil
}
