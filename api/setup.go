// Package api HTTP 服务装配与路由
package api

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"backend/internal/analytics"
	"backend/internal/config"
	"backend/internal/rag"
)

// Dependencies 装配服务所需的外部资源
type Dependencies struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client    // 可为 nil, 嵌入缓存退化为进程内
	Queue  rag.TaskEnqueuer // 可为 nil, 文档处理走同步
}

// Services 对外提供的领域服务集合
type Services struct {
	DB        *gorm.DB
	Retriever *rag.Retriever
	Answerer  *rag.Answerer
	Ingestor  *rag.Ingestor
	Analytics *analytics.Service
}

// BuildServices 按配置装配领域服务。
// 凭证或后端配置缺失在这里立即失败, 不等到首个请求。
func BuildServices(deps Dependencies) (*Services, error) {
	cfg := deps.Config

	embedder, err := buildEmbedder(cfg, deps.Redis)
	if err != nil {
		return nil, err
	}

	index, err := buildVectorIndex(cfg, deps.DB, embedder)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(index, rag.RetrieverConfig{
		DefaultTopK:           cfg.Retrieval.Retriever.DefaultTopK,
		MaxTopK:               cfg.Retrieval.Retriever.MaxTopK,
		DefaultScoreThreshold: cfg.Retrieval.Retriever.DefaultScoreThreshold,
		MaxContextLength:      cfg.Retrieval.Retriever.MaxContextLength,
	})
	if err != nil {
		return nil, err
	}

	chat, err := rag.NewOpenAIChat(
		cfg.AI.OpenAI.APIKey,
		cfg.AI.OpenAI.BaseURL,
		cfg.AI.OpenAI.OrgID,
		cfg.AI.OpenAI.ChatModel,
		cfg.Retrieval.Answer.Temperature,
		cfg.Retrieval.Answer.MaxTokens,
	)
	if err != nil {
		return nil, err
	}

	answerer, err := rag.NewAnswerer(retriever, chat)
	if err != nil {
		return nil, err
	}

	splitter, err := rag.NewSplitter(
		cfg.Retrieval.Chunker.ChunkSize,
		cfg.Retrieval.Chunker.ChunkOverlap,
		nil,
	)
	if err != nil {
		return nil, err
	}

	ingestor, err := rag.NewIngestor(deps.DB, splitter, index, deps.Queue)
	if err != nil {
		return nil, err
	}

	analyticsSvc, err := analytics.NewService(deps.DB)
	if err != nil {
		return nil, err
	}

	return &Services{
		DB:        deps.DB,
		Retriever: retriever,
		Answerer:  answerer,
		Ingestor:  ingestor,
		Analytics: analyticsSvc,
	}, nil
}

// buildEmbedder 按配置选择嵌入提供商, 需要时套上缓存
func buildEmbedder(cfg *config.Config, rdb *redis.Client) (rag.EmbeddingProvider, error) {
	var embedder rag.EmbeddingProvider
	var err error

	switch cfg.Retrieval.EmbeddingProvider {
	case "ollama":
		embedder, err = rag.NewOllamaEmbeddings(
			cfg.AI.Ollama.BaseURL,
			cfg.AI.Ollama.EmbeddingModel,
			time.Duration(cfg.AI.Ollama.TimeoutSeconds)*time.Second,
		)
	case "openai", "":
		embedder, err = rag.NewOpenAIEmbeddings(
			cfg.AI.OpenAI.APIKey,
			cfg.AI.OpenAI.BaseURL,
			cfg.AI.OpenAI.OrgID,
			cfg.AI.OpenAI.EmbeddingModel,
		)
	default:
		return nil, fmt.Errorf("未知嵌入提供商: %s", cfg.Retrieval.EmbeddingProvider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Retrieval.Cache.Enabled {
		ttl, _ := time.ParseDuration(cfg.Retrieval.Cache.TTL)
		embedder = rag.NewEmbeddingCache(embedder, rdb, cfg.Retrieval.Cache.Prefix, ttl)
	}
	return embedder, nil
}

// buildVectorIndex 按配置选择向量索引后端
func buildVectorIndex(cfg *config.Config, db *gorm.DB, embedder rag.EmbeddingProvider) (rag.VectorIndex, error) {
	vs := cfg.Retrieval.VectorStore
	switch vs.Type {
	case "qdrant", "":
		return rag.NewQdrantStore(rag.QdrantConfig{
			Endpoint:       vs.Qdrant.Endpoint,
			APIKey:         vs.Qdrant.APIKey,
			Collection:     vs.Qdrant.Collection,
			VectorDim:      vs.Qdrant.VectorDimension,
			Distance:       vs.Qdrant.Distance,
			TimeoutSeconds: vs.Qdrant.TimeoutSeconds,
		}, embedder)
	case "pgvector":
		return rag.NewPgVectorStore(db, vs.Qdrant.Collection, vs.Qdrant.VectorDimension, embedder)
	case "memory":
		return rag.NewMemoryStore(vs.Qdrant.Collection, embedder), nil
	default:
		return nil, fmt.Errorf("未知向量存储类型: %s", vs.Type)
	}
}
