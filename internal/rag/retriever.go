package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// 检索默认参数
const (
	DefaultTopK           = 5
	MaxTopK               = 10
	DefaultScoreThreshold = 0.35
	DefaultMaxContextLen  = 4000
)

// contextBlockSeparator 上下文块之间的分隔线
const contextBlockSeparator = "\n---\n"

// RetrieverConfig 检索器参数, 零值字段回落到默认值
type RetrieverConfig struct {
	DefaultTopK           int
	MaxTopK               int
	DefaultScoreThreshold float64
	MaxContextLength      int
}

// RetrieveOptions 单次检索的可选参数
type RetrieveOptions struct {
	TopK           int            // 0 表示使用默认值
	ScoreThreshold *float64       // nil 表示使用默认阈值
	Filter         map[string]any // 元数据等值过滤
}

// Retriever 相似度检索器。
// 把向量索引的距离换算为相关性分数 (score = 1 - 余弦距离),
// 按阈值过滤后保持原始排序返回。
type Retriever struct {
	index VectorIndex
	cfg   RetrieverConfig
	log   *zap.Logger
}

// NewRetriever 创建检索器。
// 分数换算假定余弦距离, 其他度量的索引在构造期拒绝。
func NewRetriever(index VectorIndex, cfg RetrieverConfig) (*Retriever, error) {
	if index == nil {
		return nil, NewConfigError("retriever", "缺少向量索引")
	}
	if metric := index.DistanceMetric(); metric != DistanceCosine {
		return nil, NewConfigError("retriever",
			fmt.Sprintf("分数换算只支持余弦距离, 索引度量为 %q", metric))
	}

	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if cfg.DefaultScoreThreshold <= 0 {
		cfg.DefaultScoreThreshold = DefaultScoreThreshold
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLen
	}
	if cfg.DefaultTopK > cfg.MaxTopK {
		return nil, NewConfigError("retriever",
			fmt.Sprintf("default_top_k (%d) 不能超过 max_top_k (%d)", cfg.DefaultTopK, cfg.MaxTopK))
	}

	return &Retriever{
		index: index,
		cfg:   cfg,
		log:   logger.Named("retriever"),
	}, nil
}

// Retrieve 检索与问题相关的分块。
// 返回空切片是合法结果, 表示没有超过阈值的内容。
func (r *Retriever) Retrieve(ctx context.Context, question string, opts RetrieveOptions) ([]ScoredChunk, error) {
	topK := opts.TopK
	if topK == 0 {
		topK = r.cfg.DefaultTopK
	}
	if topK < 1 || topK > r.cfg.MaxTopK {
		return nil, NewValidationError("top_k",
			fmt.Sprintf("top_k 必须在 1 到 %d 之间, 实际 %d", r.cfg.MaxTopK, topK))
	}

	threshold := r.cfg.DefaultScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, NewValidationError("score_threshold",
			fmt.Sprintf("score_threshold 必须在 0 到 1 之间, 实际 %v", threshold))
	}

	start := time.Now()
	results, err := r.index.Query(ctx, question, topK, opts.Filter)
	if err != nil {
		metrics.ObserveRetrieval(time.Since(start), 0, err)
		return nil, err
	}

	// 索引按距离升序返回, 换算分数后过滤保持原序
	chunks := make([]ScoredChunk, 0, len(results))
	for _, res := range results {
		score := 1 - res.Distance
		if score < threshold {
			continue
		}
		chunks = append(chunks, ScoredChunk{
			Text:     res.Text,
			Metadata: res.Metadata,
			Score:    score,
		})
	}
	metrics.ObserveRetrieval(time.Since(start), len(chunks), nil)

	r.log.Debug("检索完成",
		zap.Int("top_k", topK),
		zap.Float64("threshold", threshold),
		zap.Int("raw", len(results)),
		zap.Int("kept", len(chunks)))
	return chunks, nil
}

// BuildContext 贪心打包上下文。
// 按检索排序逐块装入, 整块装不下即停止, 不截断块内容;
// 长度预算把块之间的分隔线也计算在内。
// 返回打包后的上下文文本与按出现顺序去重的来源列表。
func (r *Retriever) BuildContext(chunks []ScoredChunk) (string, []string) {
	var blocks []string
	var sources []string
	seen := make(map[string]bool)

	used := 0
	for _, chunk := range chunks {
		block := fmt.Sprintf("[Source: %s]\n%s\n", chunk.Source(), chunk.Text)
		cost := len([]rune(block))
		if len(blocks) > 0 {
			cost += len(contextBlockSeparator)
		}
		if used+cost > r.cfg.MaxContextLength {
			break
		}
		used += cost
		blocks = append(blocks, block)

		if src := chunk.Source(); !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	return strings.Join(blocks, contextBlockSeparator), sources
}

// MaxContextLength 返回上下文长度预算
func (r *Retriever) MaxContextLength() int { return r.cfg.MaxContextLength }
