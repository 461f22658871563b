package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backend/internal/logger"
)

// qdrant 点 ID 命名空间, 自然 ID 经 UUIDv5 映射后写入,
// 同一自然 ID 重复写入即覆盖
var qdrantPointNamespace = uuid.MustParse("8f1d7a2e-5b3c-4a9d-9e61-0c4f2d8b7a53")

// QdrantStore 基于 Qdrant HTTP API 的向量索引实现
type QdrantStore struct {
	endpoint   string
	apiKey     string
	collection string
	dimension  int
	distance   string
	embedder   EmbeddingProvider
	httpClient *http.Client
	log        *zap.Logger

	ensureMu sync.Mutex
	ensured  bool
}

// QdrantConfig Qdrant 连接配置
type QdrantConfig struct {
	Endpoint       string
	APIKey         string
	Collection     string
	VectorDim      int
	Distance       string
	TimeoutSeconds int
}

// NewQdrantStore 创建 Qdrant 向量索引
// embedder 用于查询文本及未携带向量的记录的向量化
func NewQdrantStore(cfg QdrantConfig, embedder EmbeddingProvider) (*QdrantStore, error) {
	if cfg.Endpoint == "" {
		return nil, NewConfigError("qdrant", "缺少 endpoint")
	}
	if cfg.Collection == "" {
		return nil, NewConfigError("qdrant", "缺少 collection")
	}
	if cfg.VectorDim <= 0 {
		return nil, NewConfigError("qdrant", fmt.Sprintf("vector_dimension 必须为正数, 实际 %d", cfg.VectorDim))
	}
	if embedder == nil {
		return nil, NewConfigError("qdrant", "缺少嵌入提供商")
	}

	distance := strings.ToLower(cfg.Distance)
	if distance == "" {
		distance = DistanceCosine
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &QdrantStore{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.VectorDim,
		distance:   distance,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Named("qdrant_store"),
	}, nil
}

// ---- Qdrant HTTP DSL ----

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantUpsertRequest struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantFieldMatch struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantFieldMatch `json:"must,omitempty"`
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantSearchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantSearchHit `json:"result"`
}

type qdrantDeleteRequest struct {
	Points []string      `json:"points,omitempty"`
	Filter *qdrantFilter `json:"filter,omitempty"`
}

type qdrantCreateCollectionRequest struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
}

type qdrantCollectionInfoResponse struct {
	Result struct {
		PointsCount uint64 `json:"points_count"`
		Status      string `json:"status"`
	} `json:"result"`
}

// ---- VectorIndex 实现 ----

// Upsert 写入或覆盖记录, 未携带向量的记录先批量补齐嵌入
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	if err := s.fillEmbeddings(ctx, records); err != nil {
		return err
	}

	points := make([]qdrantPoint, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != s.dimension {
			return NewValidationError("embedding",
				fmt.Sprintf("向量维度不匹配: 期望 %d, 实际 %d (记录 %s)", s.dimension, len(rec.Embedding), rec.ID))
		}
		points = append(points, qdrantPoint{
			ID:     s.pointID(rec.ID),
			Vector: rec.Embedding,
			Payload: map[string]any{
				"natural_id": rec.ID,
				"text":       rec.Text,
				"metadata":   rec.Metadata,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	if err := s.do(ctx, http.MethodPut, path, qdrantUpsertRequest{Points: points}, nil); err != nil {
		return err
	}
	s.log.Debug("写入向量点", zap.Int("count", len(points)))
	return nil
}

// Query 检索与查询文本最相似的记录, 返回按余弦距离升序排列
func (s *QdrantStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]RetrievalResult, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	req := qdrantSearchRequest{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
		Filter:      buildQdrantFilter(filter),
	}

	var resp qdrantSearchResponse
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	if err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	results := make([]RetrievalResult, 0, len(resp.Result))
	for _, hit := range resp.Result {
		text, _ := hit.Payload["text"].(string)
		metadata, _ := hit.Payload["metadata"].(map[string]any)
		results = append(results, RetrievalResult{
			Text:     text,
			Metadata: metadata,
			// Qdrant 余弦返回相似度, 统一换算为距离
			Distance: 1 - hit.Score,
		})
	}
	return results, nil
}

// Delete 按自然 ID 删除记录
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = s.pointID(id)
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	return s.do(ctx, http.MethodPost, path, qdrantDeleteRequest{Points: points}, nil)
}

// DeleteByFilter 按元数据过滤条件删除
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	qf := buildQdrantFilter(filter)
	if qf == nil {
		return NewValidationError("filter", "过滤条件不能为空")
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	return s.do(ctx, http.MethodPost, path, qdrantDeleteRequest{Filter: qf}, nil)
}

// Clear 删除并重建集合
func (s *QdrantStore) Clear(ctx context.Context) error {
	path := "/collections/" + s.collection
	if err := s.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	// 下次访问时重建集合
	s.ensureMu.Lock()
	s.ensured = false
	s.ensureMu.Unlock()
	return nil
}

// Stats 返回集合统计信息
func (s *QdrantStore) Stats(ctx context.Context) (*CollectionStats, error) {
	var resp qdrantCollectionInfoResponse
	path := "/collections/" + s.collection
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &CollectionStats{
		Name:  s.collection,
		Count: int64(resp.Result.PointsCount),
		Metadata: map[string]any{
			"status":   resp.Result.Status,
			"distance": s.distance,
			"backend":  "qdrant",
		},
	}, nil
}

// DistanceMetric 返回距离度量
func (s *QdrantStore) DistanceMetric() string { return s.distance }

// ---- 内部方法 ----

// pointID 将自然 ID 映射为确定性的 UUIDv5, Qdrant 只接受 UUID 或整数点 ID
func (s *QdrantStore) pointID(naturalID string) string {
	return uuid.NewSHA1(qdrantPointNamespace, []byte(naturalID)).String()
}

// fillEmbeddings 为缺少向量的记录批量生成嵌入
func (s *QdrantStore) fillEmbeddings(ctx context.Context, records []Record) error {
	var missIdx []int
	var missTexts []string
	for i, rec := range records {
		if len(rec.Embedding) == 0 {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, rec.Text)
		}
	}
	if len(missTexts) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return err
	}
	for j, idx := range missIdx {
		records[idx].Embedding = vectors[j]
	}
	return nil
}

// ensureCollection 惰性建集合, 建成后进程内不再探测
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}

	path := "/collections/" + s.collection
	if err := s.do(ctx, http.MethodGet, path, nil, nil); err == nil {
		s.ensured = true
		return nil
	}

	var req qdrantCreateCollectionRequest
	req.Vectors.Size = s.dimension
	req.Vectors.Distance = qdrantDistanceName(s.distance)
	if err := s.do(ctx, http.MethodPut, path, req, nil); err != nil {
		return err
	}

	s.log.Info("创建 Qdrant 集合",
		zap.String("collection", s.collection),
		zap.Int("dimension", s.dimension),
		zap.String("distance", s.distance))
	s.ensured = true
	return nil
}

// qdrantDistanceName 距离度量转 Qdrant 枚举名
func qdrantDistanceName(metric string) string {
	switch strings.ToLower(metric) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dot_product":
		return "Dot"
	default:
		return "Cosine"
	}
}

// buildQdrantFilter 元数据等值过滤转 Qdrant must 条件
func buildQdrantFilter(filter map[string]any) *qdrantFilter {
	if len(filter) == 0 {
		return nil
	}
	qf := &qdrantFilter{}
	for key, value := range filter {
		cond := qdrantFieldMatch{Key: "metadata." + key}
		cond.Match.Value = value
		qf.Must = append(qf.Must, cond)
	}
	return qf
}

// do 执行一次 Qdrant HTTP 请求, 非 2xx 统一转为 ProviderError
func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewProviderError("qdrant", fmt.Errorf("序列化请求失败: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return NewProviderError("qdrant", fmt.Errorf("构建请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return NewProviderError("qdrant", fmt.Errorf("请求 %s %s 失败: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError("qdrant", fmt.Errorf("读取响应失败: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewProviderError("qdrant",
			fmt.Errorf("%s %s 返回状态 %d: %s", method, path, resp.StatusCode, string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return NewProviderError("qdrant", fmt.Errorf("解析响应失败: %w", err))
		}
	}
	return nil
}
