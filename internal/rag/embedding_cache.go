package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backend/internal/logger"
)

// CachedEmbedding Redis 中存储的嵌入缓存条目
type CachedEmbedding struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
}

// EmbeddingCache 两级嵌入缓存: 进程内 sync.Map 一级, Redis 二级。
// 以内容哈希 + 模型名为键, 同一文本换模型后不会命中旧向量。
// 包装一个底层 EmbeddingProvider, 自身也实现 EmbeddingProvider。
type EmbeddingCache struct {
	provider EmbeddingProvider
	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	local    sync.Map
	log      *zap.Logger
}

// NewEmbeddingCache 创建嵌入缓存。rdb 可为 nil, 此时只用进程内缓存。
func NewEmbeddingCache(provider EmbeddingProvider, rdb *redis.Client, prefix string, ttl time.Duration) *EmbeddingCache {
	if prefix == "" {
		prefix = "insights:embed"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		provider: provider,
		rdb:      rdb,
		prefix:   prefix,
		ttl:      ttl,
		log:      logger.Named("embedding_cache"),
	}
}

func (c *EmbeddingCache) cacheKey(text string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, c.provider.Model(), hashContent(text))
}

// Embed 生成单条向量, 优先命中缓存
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量, 只把未命中的部分透传给底层提供商
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := c.get(ctx, text); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		vectors[idx] = fresh[j]
		c.set(ctx, texts[idx], fresh[j])
	}

	c.log.Debug("嵌入缓存批量查询",
		zap.Int("total", len(texts)),
		zap.Int("miss", len(missTexts)))
	return vectors, nil
}

func (c *EmbeddingCache) get(ctx context.Context, text string) ([]float32, bool) {
	key := c.cacheKey(text)
	if v, ok := c.local.Load(key); ok {
		return v.([]float32), true
	}
	if c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		// 缓存未命中或 Redis 故障都退回底层提供商
		return nil, false
	}

	var entry CachedEmbedding
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Model != c.provider.Model() {
		return nil, false
	}
	c.local.Store(key, entry.Vector)
	return entry.Vector, true
}

func (c *EmbeddingCache) set(ctx context.Context, text string, vector []float32) {
	key := c.cacheKey(text)
	c.local.Store(key, vector)
	if c.rdb == nil {
		return
	}

	raw, err := json.Marshal(CachedEmbedding{Vector: vector, Model: c.provider.Model()})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("写入嵌入缓存失败", zap.Error(err))
	}
}

// Model 返回底层提供商的嵌入模型名
func (c *EmbeddingCache) Model() string { return c.provider.Model() }

// ProviderName 返回底层提供商标识
func (c *EmbeddingCache) ProviderName() string { return c.provider.ProviderName() }
