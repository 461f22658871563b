package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// 问题长度约束 (字符数)
const (
	MinQuestionLength = 5
	MaxQuestionLength = 500
)

// 回答生成的默认采样参数
const (
	DefaultAnswerTemperature = 0.2
	DefaultAnswerMaxTokens   = 400
)

// systemPrompt 对话系统消息
const systemPrompt = "You are a concise, factual sales insights assistant."

// promptTemplate 接地提示词模板: 指令在前, 上下文居中, 问题收尾
const promptTemplate = `You are a sales insights assistant. Use ONLY the provided context to answer. If context is insufficient, say you do not have enough information.

Context:
%s

Question: %s
Answer concisely:`

// ChatModel 对话模型抽象, 返回生成的回答文本
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIChat 基于 OpenAI Chat Completions 的对话模型实现
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	log         *zap.Logger
}

// NewOpenAIChat 创建 OpenAI 对话模型客户端。
// temperature / maxTokens 传零值时使用默认采样参数。
func NewOpenAIChat(apiKey, baseURL, orgID, model string, temperature float64, maxTokens int) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, NewConfigError("openai_chat", "缺少 API Key")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if temperature <= 0 {
		temperature = DefaultAnswerTemperature
	}
	if maxTokens <= 0 {
		maxTokens = DefaultAnswerMaxTokens
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if orgID != "" {
		cfg.OrgID = orgID
	}

	return &OpenAIChat{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: float32(temperature),
		maxTokens:   maxTokens,
		log:         logger.Named("openai_chat"),
	}, nil
}

// Complete 执行一次对话补全
func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	metrics.ObserveModelCall("openai", "chat", time.Since(start), err)
	if err != nil {
		c.log.Error("对话补全失败", zap.Error(err))
		return "", NewProviderError("openai", fmt.Errorf("对话补全失败: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", NewProviderError("openai", fmt.Errorf("对话补全返回空结果"))
	}

	metrics.AddModelTokens("openai", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildPrompt 组装接地提示词
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf(promptTemplate, contextText, question)
}

// AskResult RAG 问答结果。
// Sources 按检索排序逐块给出来源、分数和原文, 同一来源的多个分块各占一条。
type AskResult struct {
	Answer     string        `json:"answer"`
	Sources    []SourceChunk `json:"sources"`
	ChunksUsed int           `json:"chunks_used"`
	LatencyMS  int64         `json:"latency_ms"`
}

// Answerer RAG 问答编排: 校验问题 -> 检索 -> 打包上下文 -> 生成回答
type Answerer struct {
	retriever *Retriever
	chat      ChatModel
	log       *zap.Logger
}

// NewAnswerer 创建问答编排器
func NewAnswerer(retriever *Retriever, chat ChatModel) (*Answerer, error) {
	if retriever == nil {
		return nil, NewConfigError("answerer", "缺少检索器")
	}
	if chat == nil {
		return nil, NewConfigError("answerer", "缺少对话模型")
	}
	return &Answerer{
		retriever: retriever,
		chat:      chat,
		log:       logger.Named("answerer"),
	}, nil
}

// ValidateQuestion 校验问题文本, 两端空白不计入长度
func ValidateQuestion(question string) (string, error) {
	trimmed := strings.TrimSpace(question)
	n := len([]rune(trimmed))
	if n < MinQuestionLength || n > MaxQuestionLength {
		return "", NewValidationError("question",
			fmt.Sprintf("问题长度必须在 %d 到 %d 个字符之间, 实际 %d", MinQuestionLength, MaxQuestionLength, n))
	}
	return trimmed, nil
}

// Ask 执行一次 RAG 问答。
// 校验失败返回 ValidationError (不触发任何外部调用);
// 没有超过阈值的上下文时返回 ErrNoRelevantContext。
func (a *Answerer) Ask(ctx context.Context, question string, opts RetrieveOptions) (*AskResult, error) {
	start := time.Now()

	question, err := ValidateQuestion(question)
	if err != nil {
		return nil, err
	}

	chunks, err := a.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoRelevantContext
	}

	contextText, sourceNames := a.retriever.BuildContext(chunks)
	if contextText == "" {
		// 所有块都装不进上下文预算, 等价于无可用上下文
		return nil, ErrNoRelevantContext
	}

	answer, err := a.chat.Complete(ctx, systemPrompt, BuildPrompt(contextText, question))
	if err != nil {
		return nil, err
	}

	// 响应里逐块返回来源信息, 保持检索排序, 不按来源去重
	sources := make([]SourceChunk, 0, len(chunks))
	for i := range chunks {
		sources = append(sources, SourceChunk{
			Source: chunks[i].Source(),
			Score:  chunks[i].Score,
			Text:   chunks[i].Text,
		})
	}

	elapsed := time.Since(start)
	a.log.Info("问答完成",
		zap.Int("chunks_used", len(chunks)),
		zap.Strings("sources", sourceNames),
		zap.Duration("elapsed", elapsed))

	return &AskResult{
		Answer:     answer,
		Sources:    sources,
		ChunksUsed: len(chunks),
		LatencyMS:  elapsed.Milliseconds(),
	}, nil
}
