package rag

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/api/handlers/common"
	ragcore "backend/internal/rag"
)

// Ask RAG 问答
// @Summary 基于知识库回答问题
// @Tags rag
// @Accept json
// @Produce json
// @Param request body AskRequest true "问答请求"
// @Success 200 {object} common.Response{data=ragcore.AskResult}
// @Failure 400 {object} common.Response "参数错误"
// @Failure 404 {object} common.Response "没有相关上下文"
// @Router /api/v1/rag/ask [post]
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	result, err := h.answerer.Ask(c.Request.Context(), req.Question, ragcore.RetrieveOptions{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		Filter:         req.Filter,
	})
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, result)
}

// Search 相似度检索
// @Summary 检索与查询相关的文档分块, 不生成回答
// @Tags rag
// @Accept json
// @Produce json
// @Param request body SearchRequest true "检索请求"
// @Success 200 {object} common.Response{data=SearchResponse}
// @Router /api/v1/rag/search [post]
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	chunks, err := h.retriever.Retrieve(c.Request.Context(), req.Query, ragcore.RetrieveOptions{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		Filter:         req.Filter,
	})
	if err != nil {
		common.FromError(c, err)
		return
	}

	hits := make([]SearchHit, len(chunks))
	for i, chunk := range chunks {
		hits[i] = SearchHit{
			Text:     chunk.Text,
			Source:   chunk.Source(),
			Score:    chunk.Score,
			Metadata: chunk.Metadata,
		}
	}
	common.Success(c, SearchResponse{Hits: hits, Count: len(hits)})
}

// Stats 知识库统计
// @Summary 文档与向量索引统计
// @Tags rag
// @Produce json
// @Success 200 {object} common.Response{data=ragcore.IngestStats}
// @Router /api/v1/rag/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.ingestor.Stats(c.Request.Context())
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, stats)
}
