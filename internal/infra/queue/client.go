// Package queue 异步任务投递客户端
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/worker/tasks"
)

// Client 封装 asynq 客户端, 实现文档处理任务的投递
type Client struct {
	client *asynq.Client
	log    *zap.Logger
}

// NewClient 创建队列客户端
func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
		log: logger.Named("queue_client"),
	}
}

// EnqueueDocumentProcessing 投递一个文档处理任务
func (c *Client) EnqueueDocumentProcessing(ctx context.Context, documentID string) error {
	task, err := tasks.NewDocumentProcessTask(documentID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task, asynq.Timeout(10*time.Minute))
	if err != nil {
		return fmt.Errorf("投递文档处理任务失败: %w", err)
	}

	c.log.Info("任务已入队",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.String("document_id", documentID))
	return nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.client.Close()
}
