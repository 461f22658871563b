// Package tasks 队列任务类型与载荷定义
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型
const (
	TypeIngestProcessDocument = "ingest:process_document"
)

// 队列名称
const (
	QueueIngest  = "ingest"
	QueueDefault = "default"
)

// DocumentProcessPayload 文档处理任务载荷
type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
}

// NewDocumentProcessTask 构建文档处理任务
func NewDocumentProcessTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("序列化任务载荷失败: %w", err)
	}
	return asynq.NewTask(TypeIngestProcessDocument, payload,
		asynq.Queue(QueueIngest),
		asynq.MaxRetry(3),
	), nil
}
