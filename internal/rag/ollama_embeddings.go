package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// OllamaEmbeddings 基于本地 Ollama /api/embed 接口的提供商实现,
// 供离线开发环境使用
type OllamaEmbeddings struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewOllamaEmbeddings 创建 Ollama 嵌入提供商
func NewOllamaEmbeddings(baseURL, model string, timeout time.Duration) (*OllamaEmbeddings, error) {
	if baseURL == "" {
		return nil, NewConfigError("ollama_embeddings", "缺少 base_url")
	}
	if model == "" {
		return nil, NewConfigError("ollama_embeddings", "缺少 embedding_model")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OllamaEmbeddings{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Named("ollama_embeddings"),
	}, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 生成单条文本的向量
func (p *OllamaEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量
func (p *OllamaEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, NewProviderError("ollama", fmt.Errorf("序列化请求失败: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError("ollama", fmt.Errorf("构建请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	metrics.ObserveModelCall("ollama", "embedding", time.Since(start), err)
	if err != nil {
		p.log.Error("嵌入请求失败", zap.Int("batch_size", len(texts)), zap.Error(err))
		return nil, NewProviderError("ollama", fmt.Errorf("请求嵌入接口失败: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError("ollama", fmt.Errorf("读取响应失败: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError("ollama",
			fmt.Errorf("嵌入接口返回状态 %d: %s", resp.StatusCode, string(body)))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewProviderError("ollama", fmt.Errorf("解析响应失败: %w", err))
	}
	if len(out.Embeddings) != len(texts) {
		return nil, NewProviderError("ollama",
			fmt.Errorf("嵌入结果数量不匹配: 期望 %d, 实际 %d", len(texts), len(out.Embeddings)))
	}
	return out.Embeddings, nil
}

// Model 返回嵌入模型名
func (p *OllamaEmbeddings) Model() string { return p.model }

// ProviderName 返回提供商标识
func (p *OllamaEmbeddings) ProviderName() string { return "ollama" }
