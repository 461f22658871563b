// Package handlers 队列任务处理器
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/rag"
	"backend/internal/worker/tasks"
)

// IngestHandler 文档处理任务的消费端
type IngestHandler struct {
	ingestor *rag.Ingestor
	log      *zap.Logger
}

// NewIngestHandler 创建文档处理器
func NewIngestHandler(ingestor *rag.Ingestor) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		log:      logger.Named("ingest_handler"),
	}
}

// HandleProcessDocument 消费一个文档处理任务。
// 校验类错误 (文档已删除等) 不重试, 其余错误交给 asynq 退避重试。
func (h *IngestHandler) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload tasks.DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %v: %w", err, asynq.SkipRetry)
	}

	h.log.Info("开始处理文档", zap.String("document_id", payload.DocumentID))

	if err := h.ingestor.ProcessDocument(ctx, payload.DocumentID); err != nil {
		if rag.IsValidationError(err) {
			h.log.Warn("文档处理任务跳过",
				zap.String("document_id", payload.DocumentID), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}
