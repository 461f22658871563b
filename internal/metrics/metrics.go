// Package metrics Prometheus 指标定义与观测入口
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_http_requests_total",
		Help: "HTTP 请求总数, 按方法/路径/状态码",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_http_request_duration_seconds",
		Help:    "HTTP 请求耗时分布",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// RetrievalTotal 检索次数
	RetrievalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_retrieval_total",
		Help: "向量检索次数, 按结果状态",
	}, []string{"outcome"})

	// RetrievalDuration 检索耗时
	RetrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insights_retrieval_duration_seconds",
		Help:    "向量检索耗时分布",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// RetrievalResults 过滤后的检索结果数
	RetrievalResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "insights_retrieval_results",
		Help:    "阈值过滤后保留的检索结果条数",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	})

	// ModelCallsTotal 模型调用次数
	ModelCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_model_calls_total",
		Help: "模型调用次数, 按提供商/类型/结果",
	}, []string{"provider", "kind", "result"})

	// ModelCallDuration 模型调用耗时
	ModelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_model_call_duration_seconds",
		Help:    "模型调用耗时分布",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"provider", "kind"})

	// ModelTokensTotal 模型消耗的 Token 数
	ModelTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_model_tokens_total",
		Help: "模型消耗的 Token 数, 按提供商/方向",
	}, []string{"provider", "direction"})

	// IngestDocumentsTotal 文档入库次数
	IngestDocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_ingest_documents_total",
		Help: "文档入库处理次数, 按结果",
	}, []string{"result"})

	// IngestChunksTotal 入库分块总数
	IngestChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_ingest_chunks_total",
		Help: "入库写入向量索引的分块总数",
	})

	// AnalyticsQueriesTotal 预置分析查询次数
	AnalyticsQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_analytics_queries_total",
		Help: "预置分析查询执行次数, 按查询类型/结果",
	}, []string{"query_type", "result"})
)

// ObserveModelCall 记录一次模型调用
func ObserveModelCall(provider, kind string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ModelCallsTotal.WithLabelValues(provider, kind, result).Inc()
	ModelCallDuration.WithLabelValues(provider, kind).Observe(elapsed.Seconds())
}

// ObserveRetrieval 记录一次检索
func ObserveRetrieval(elapsed time.Duration, kept int, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case kept == 0:
		outcome = "empty"
	}
	RetrievalTotal.WithLabelValues(outcome).Inc()
	RetrievalDuration.Observe(elapsed.Seconds())
	if err == nil {
		RetrievalResults.Observe(float64(kept))
	}
}

// AddModelTokens 累计模型 Token 消耗
func AddModelTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		ModelTokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		ModelTokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}
