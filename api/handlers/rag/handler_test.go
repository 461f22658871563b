package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ragcore "backend/internal/rag"
)

// stubEmbeddings 按预设映射返回向量, 未命中时返回默认向量
type stubEmbeddings struct {
	vectors map[string][]float32
}

func (s *stubEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *stubEmbeddings) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 0, 1}
	}
	return out, nil
}

func (s *stubEmbeddings) Model() string        { return "stub-embed" }
func (s *stubEmbeddings) ProviderName() string { return "stub" }

// stubChat 固定回答
type stubChat struct{ answer string }

func (s *stubChat) Complete(context.Context, string, string) (string, error) {
	return s.answer, nil
}

func newTestRouter(t *testing.T, embedder ragcore.EmbeddingProvider) (*gin.Engine, *ragcore.Ingestor, *ragcore.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ragcore.KnowledgeDocument{}))

	index := ragcore.NewMemoryStore("test", embedder)
	retriever, err := ragcore.NewRetriever(index, ragcore.RetrieverConfig{})
	require.NoError(t, err)
	answerer, err := ragcore.NewAnswerer(retriever, &stubChat{answer: "Revenue grew 12%."})
	require.NoError(t, err)
	splitter, err := ragcore.NewSplitter(500, 50, nil)
	require.NoError(t, err)
	ingestor, err := ragcore.NewIngestor(db, splitter, index, nil)
	require.NoError(t, err)

	h := NewHandler(answerer, retriever, ingestor)

	router := gin.New()
	router.POST("/rag/ask", h.Ask)
	router.POST("/rag/search", h.Search)
	router.GET("/rag/stats", h.Stats)
	router.POST("/rag/documents", h.UploadDocument)
	router.GET("/rag/documents", h.ListDocuments)
	router.GET("/rag/documents/:id", h.GetDocument)
	router.DELETE("/rag/documents/:id", h.DeleteDocument)
	return router, ingestor, index
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedIndex(t *testing.T, index *ragcore.MemoryStore, embedder *stubEmbeddings) {
	t.Helper()
	question := "how did revenue do in Q3?"
	chunk := "Revenue grew 12% in Q3 driven by the east region."
	embedder.vectors[question] = []float32{1, 0, 0}
	embedder.vectors[chunk] = []float32{1, 0, 0}

	require.NoError(t, index.Upsert(context.Background(), []ragcore.Record{
		{ID: "report_0", Text: chunk, Metadata: map[string]any{"source": "report.txt"}},
		{ID: "misc_0", Text: "unrelated content", Metadata: map[string]any{"source": "misc.txt"}},
	}))
}

func TestAskEndpoint_HappyPath(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, index := newTestRouter(t, embedder)
	seedIndex(t, index, embedder)

	w := postJSON(t, router, "/rag/ask", gin.H{"question": "how did revenue do in Q3?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ragcore.AskResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Revenue grew 12%.", resp.Data.Answer)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, "report.txt", resp.Data.Sources[0].Source)
	assert.InDelta(t, 1.0, resp.Data.Sources[0].Score, 1e-6)
	assert.Equal(t, "Revenue grew 12% in Q3 driven by the east region.", resp.Data.Sources[0].Text)
	assert.Equal(t, 1, resp.Data.ChunksUsed)
}

func TestAskEndpoint_ShortQuestionRejected(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, _ := newTestRouter(t, embedder)

	w := postJSON(t, router, "/rag/ask", gin.H{"question": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/rag/ask", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskEndpoint_NoRelevantContextIs404(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, index := newTestRouter(t, embedder)

	// 索引里只有与问题正交的向量, 分数 0 低于阈值
	require.NoError(t, index.Upsert(context.Background(), []ragcore.Record{
		{ID: "x_0", Text: "unrelated", Metadata: map[string]any{"source": "x.txt"},
			Embedding: []float32{1, 0, 0}},
	}))
	embedder.vectors["what is the weather like today?"] = []float32{0, 1, 0}

	w := postJSON(t, router, "/rag/ask", gin.H{"question": "what is the weather like today?"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAskEndpoint_InvalidTopK(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, _ := newTestRouter(t, embedder)

	w := postJSON(t, router, "/rag/ask", gin.H{
		"question": "how did revenue do in Q3?",
		"top_k":    99,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, index := newTestRouter(t, embedder)
	seedIndex(t, index, embedder)

	w := postJSON(t, router, "/rag/search", gin.H{"query": "how did revenue do in Q3?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Count)
	assert.Equal(t, "report.txt", resp.Data.Hits[0].Source)
	assert.InDelta(t, 1.0, resp.Data.Hits[0].Score, 1e-6)
}

func uploadFile(t *testing.T, router *gin.Engine, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/rag/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDocumentLifecycle(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, _ := newTestRouter(t, embedder)

	// 上传
	w := uploadFile(t, router, "report.txt", "Revenue grew 12% in Q3. East region led growth.")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var uploadResp struct {
		Data DocumentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploadResp))
	assert.Equal(t, "indexed", uploadResp.Data.Status)
	assert.Greater(t, uploadResp.Data.ChunkCount, 0)
	docID := uploadResp.Data.ID

	// 列表
	req := httptest.NewRequest(http.MethodGet, "/rag/documents", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Data DocumentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.EqualValues(t, 1, listResp.Data.Total)

	// 详情
	req = httptest.NewRequest(http.MethodGet, "/rag/documents/"+docID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// 删除后详情 404/400
	req = httptest.NewRequest(http.MethodDelete, "/rag/documents/"+docID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/rag/documents/"+docID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, _ := newTestRouter(t, embedder)

	w := uploadFile(t, router, "data.csv", "a,b,c")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), ".csv"))
}

func TestStatsEndpoint(t *testing.T) {
	embedder := &stubEmbeddings{vectors: map[string][]float32{}}
	router, _, _ := newTestRouter(t, embedder)

	w := uploadFile(t, router, "one.txt", "Indexed document body.")
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/rag/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data ragcore.IngestStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Data.Documents)
	assert.EqualValues(t, 1, resp.Data.ByStatus["indexed"])
}
