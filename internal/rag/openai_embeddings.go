package rag

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// openai 单次请求的输入条数上限
const openaiEmbedBatchLimit = 2048

// OpenAIEmbeddings 基于 OpenAI Embeddings API 的提供商实现
type OpenAIEmbeddings struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewOpenAIEmbeddings 创建 OpenAI 嵌入提供商
// apiKey 缺失属于配置错误, 在构造期失败而非首次调用时
func NewOpenAIEmbeddings(apiKey, baseURL, orgID, model string) (*OpenAIEmbeddings, error) {
	if apiKey == "" {
		return nil, NewConfigError("openai_embeddings", "缺少 API Key")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if orgID != "" {
		cfg.OrgID = orgID
	}

	return &OpenAIEmbeddings{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger.Named("openai_embeddings"),
	}, nil
}

// Embed 生成单条文本的向量
func (p *OpenAIEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量, 超过 API 上限时自动分批
func (p *OpenAIEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openaiEmbedBatchLimit {
		end := start + openaiEmbedBatchLimit
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *OpenAIEmbeddings) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	metrics.ObserveModelCall("openai", "embedding", time.Since(start), err)
	if err != nil {
		p.log.Error("嵌入请求失败", zap.Int("batch_size", len(texts)), zap.Error(err))
		return nil, NewProviderError("openai", fmt.Errorf("创建嵌入失败: %w", err))
	}

	if len(resp.Data) != len(texts) {
		return nil, NewProviderError("openai",
			fmt.Errorf("嵌入结果数量不匹配: 期望 %d, 实际 %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, NewProviderError("openai", fmt.Errorf("嵌入结果索引越界: %d", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// Model 返回嵌入模型名
func (p *OpenAIEmbeddings) Model() string { return p.model }

// ProviderName 返回提供商标识
func (p *OpenAIEmbeddings) ProviderName() string { return "openai" }
