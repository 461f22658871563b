package rag

import "context"

// EmbeddingProvider 文本向量化提供商抽象。
// 实现必须对相同输入返回维度一致的向量, 失败时返回 ProviderError。
type EmbeddingProvider interface {
	// Embed 生成单条文本的向量
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成向量, 返回顺序与输入一一对应
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model 返回所用的嵌入模型名
	Model() string

	// ProviderName 返回提供商标识, 用于日志与指标
	ProviderName() string
}
