package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/rag/parsers"
)

// TaskEnqueuer 文档处理任务的投递抽象, 由队列客户端实现
type TaskEnqueuer interface {
	EnqueueDocumentProcessing(ctx context.Context, documentID string) error
}

// IngestStats 入库统计
type IngestStats struct {
	Documents     int64            `json:"documents"`
	ByStatus      map[string]int64 `json:"by_status"`
	IndexedChunks int64            `json:"indexed_chunks"`
}

// Ingestor 文档入库编排: 解析 -> 落库 -> 分块 -> 嵌入 -> 写入向量索引。
// 配置了 enqueuer 时走异步队列, 否则同步处理。
type Ingestor struct {
	db       *gorm.DB
	splitter *Splitter
	index    VectorIndex
	registry *parsers.Registry
	enqueuer TaskEnqueuer
	log      *zap.Logger
}

// NewIngestor 创建入库编排器。enqueuer 可为 nil, 表示同步处理。
func NewIngestor(db *gorm.DB, splitter *Splitter, index VectorIndex, enqueuer TaskEnqueuer) (*Ingestor, error) {
	if db == nil {
		return nil, NewConfigError("ingestor", "缺少数据库连接")
	}
	if splitter == nil {
		return nil, NewConfigError("ingestor", "缺少分块器")
	}
	if index == nil {
		return nil, NewConfigError("ingestor", "缺少向量索引")
	}
	return &Ingestor{
		db:       db,
		splitter: splitter,
		index:    index,
		registry: parsers.NewRegistry(),
		enqueuer: enqueuer,
		log:      logger.Named("ingestor"),
	}, nil
}

// UploadDocument 接收文档内容并登记。
// 同名文件 (Source 相同) 覆盖旧版本, 向量在处理阶段重建。
func (ing *Ingestor) UploadDocument(ctx context.Context, filename string, data []byte, metadata map[string]any) (*KnowledgeDocument, error) {
	if len(data) == 0 {
		return nil, NewValidationError("file", "文件内容为空")
	}
	if !ing.registry.Supported(filename) {
		return nil, NewValidationError("file",
			fmt.Sprintf("不支持的文件类型: %s", filepath.Ext(filename)))
	}

	content, err := ing.registry.Parse(filename, data)
	if err != nil {
		return nil, NewValidationError("file", fmt.Sprintf("解析文件失败: %v", err))
	}
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("file", "文件中没有可用文本")
	}

	source := filepath.Base(filename)
	doc := &KnowledgeDocument{
		ID:          uuid.NewString(),
		Source:      source,
		FileName:    source,
		ContentType: strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		Content:     content,
		FileSize:    int64(len(data)),
		FileHash:    hashContent(content),
		Status:      DocStatusPending,
		MetadataRaw: metadata,
	}

	// 同一来源覆盖旧记录, 保留原始 ID 以免队列中的旧任务失效
	err = ing.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing KnowledgeDocument
		switch findErr := tx.Where("source = ?", source).First(&existing).Error; {
		case findErr == nil:
			doc.ID = existing.ID
			return tx.Model(&existing).Updates(map[string]any{
				"file_name":     doc.FileName,
				"content_type":  doc.ContentType,
				"content":       doc.Content,
				"file_size":     doc.FileSize,
				"file_hash":     doc.FileHash,
				"status":        DocStatusPending,
				"chunk_count":   0,
				"error_message": "",
			}).Error
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return tx.Create(doc).Error
		default:
			return findErr
		}
	})
	if err != nil {
		return nil, fmt.Errorf("登记文档失败: %w", err)
	}

	if ing.enqueuer != nil {
		if err := ing.enqueuer.EnqueueDocumentProcessing(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("投递处理任务失败: %w", err)
		}
		ing.log.Info("文档已登记并入队",
			zap.String("document_id", doc.ID), zap.String("source", source))
		return doc, nil
	}

	if err := ing.ProcessDocument(ctx, doc.ID); err != nil {
		return nil, err
	}
	// 同步处理后回读状态
	if err := ing.db.WithContext(ctx).First(doc, "id = ?", doc.ID).Error; err != nil {
		return nil, fmt.Errorf("回读文档状态失败: %w", err)
	}
	return doc, nil
}

// ProcessDocument 处理一篇已登记的文档: 分块并写入向量索引。
// 失败时文档进入 failed 状态并记录原因, 供重试与排查。
func (ing *Ingestor) ProcessDocument(ctx context.Context, documentID string) error {
	var doc KnowledgeDocument
	if err := ing.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError("document_id", "文档不存在")
		}
		return fmt.Errorf("查询文档失败: %w", err)
	}

	if err := ing.setStatus(ctx, doc.ID, DocStatusProcessing, ""); err != nil {
		return err
	}

	chunkCount, err := ing.indexDocument(ctx, &doc)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		if setErr := ing.setStatus(ctx, doc.ID, DocStatusFailed, err.Error()); setErr != nil {
			ing.log.Error("记录失败状态失败", zap.Error(setErr))
		}
		ing.log.Error("文档处理失败",
			zap.String("document_id", doc.ID),
			zap.String("source", doc.Source),
			zap.Error(err))
		return err
	}

	now := time.Now()
	err = ing.db.WithContext(ctx).Model(&KnowledgeDocument{}).
		Where("id = ?", doc.ID).
		Updates(map[string]any{
			"status":        DocStatusIndexed,
			"chunk_count":   chunkCount,
			"error_message": "",
			"processed_at":  &now,
		}).Error
	if err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	metrics.IngestDocumentsTotal.WithLabelValues("indexed").Inc()
	metrics.IngestChunksTotal.Add(float64(chunkCount))
	ing.log.Info("文档索引完成",
		zap.String("document_id", doc.ID),
		zap.String("source", doc.Source),
		zap.Int("chunks", chunkCount))
	return nil
}

// indexDocument 分块嵌入并写入索引, 返回分块数
func (ing *Ingestor) indexDocument(ctx context.Context, doc *KnowledgeDocument) (int, error) {
	docMeta := map[string]any{"source": doc.Source}
	for k, v := range doc.MetadataRaw {
		if k != "source" {
			docMeta[k] = v
		}
	}

	chunks := ing.splitter.SplitDocuments([]Document{{Text: doc.Content, Metadata: docMeta}})
	if len(chunks) == 0 {
		return 0, NewValidationError("content", "文档分块后为空")
	}

	stem := sourceStem(doc.Source)
	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = Record{
			ID:       fmt.Sprintf("%s_%d", stem, chunk.ChunkIndex),
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
		}
	}

	// 先清掉同一来源的旧分块, 覆盖上传后分块数变少时不留孤儿
	if err := ing.index.DeleteByFilter(ctx, map[string]any{"source": doc.Source}); err != nil {
		return 0, fmt.Errorf("清理旧分块失败: %w", err)
	}
	if err := ing.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("写入向量索引失败: %w", err)
	}
	return len(chunks), nil
}

// DeleteDocument 删除文档及其全部向量
func (ing *Ingestor) DeleteDocument(ctx context.Context, documentID string) error {
	var doc KnowledgeDocument
	if err := ing.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError("document_id", "文档不存在")
		}
		return fmt.Errorf("查询文档失败: %w", err)
	}

	if err := ing.index.DeleteByFilter(ctx, map[string]any{"source": doc.Source}); err != nil {
		return fmt.Errorf("删除向量失败: %w", err)
	}
	if err := ing.db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}

	ing.log.Info("文档已删除",
		zap.String("document_id", doc.ID), zap.String("source", doc.Source))
	return nil
}

// ListDocuments 分页列出文档, 按更新时间倒序
func (ing *Ingestor) ListDocuments(ctx context.Context, page, pageSize int) ([]KnowledgeDocument, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := ing.db.WithContext(ctx).Model(&KnowledgeDocument{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计文档失败: %w", err)
	}

	var docs []KnowledgeDocument
	err := ing.db.WithContext(ctx).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询文档失败: %w", err)
	}
	return docs, total, nil
}

// GetDocument 按 ID 查询文档
func (ing *Ingestor) GetDocument(ctx context.Context, documentID string) (*KnowledgeDocument, error) {
	var doc KnowledgeDocument
	if err := ing.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("document_id", "文档不存在")
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return &doc, nil
}

// IngestDirectory 扫描目录并入库所有支持的文档, 返回成功入库的数量。
// 单个文件失败只记日志, 不中断整体流程。
func (ing *Ingestor) IngestDirectory(ctx context.Context, dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, NewValidationError("dir", fmt.Sprintf("目录不可用: %s", dir))
	}

	ingested := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ing.registry.Supported(path) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			ing.log.Warn("读取文件失败", zap.String("path", path), zap.Error(readErr))
			return nil
		}
		if _, upErr := ing.UploadDocument(ctx, d.Name(), data, nil); upErr != nil {
			ing.log.Warn("入库失败", zap.String("path", path), zap.Error(upErr))
			return nil
		}
		ingested++
		return nil
	})
	if err != nil {
		return ingested, fmt.Errorf("扫描目录失败: %w", err)
	}

	ing.log.Info("目录入库完成", zap.String("dir", dir), zap.Int("ingested", ingested))
	return ingested, nil
}

// Stats 汇总文档与索引统计
func (ing *Ingestor) Stats(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{ByStatus: make(map[string]int64)}

	if err := ing.db.WithContext(ctx).Model(&KnowledgeDocument{}).Count(&stats.Documents).Error; err != nil {
		return nil, fmt.Errorf("统计文档失败: %w", err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := ing.db.WithContext(ctx).Model(&KnowledgeDocument{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按状态统计失败: %w", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}

	if indexStats, err := ing.index.Stats(ctx); err == nil {
		stats.IndexedChunks = indexStats.Count
	}
	return stats, nil
}

func (ing *Ingestor) setStatus(ctx context.Context, id, status, errMsg string) error {
	err := ing.db.WithContext(ctx).Model(&KnowledgeDocument{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "error_message": errMsg}).Error
	if err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	return nil
}

// sourceStem 去掉扩展名的文件名, 作为分块自然 ID 的前缀
func sourceStem(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
