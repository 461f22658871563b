// Package rag RAG 问答与文档管理接口
package rag

import (
	ragcore "backend/internal/rag"
)

// Handler RAG 接口处理器
type Handler struct {
	answerer  *ragcore.Answerer
	retriever *ragcore.Retriever
	ingestor  *ragcore.Ingestor
}

// NewHandler 创建 RAG 接口处理器
func NewHandler(answerer *ragcore.Answerer, retriever *ragcore.Retriever, ingestor *ragcore.Ingestor) *Handler {
	return &Handler{
		answerer:  answerer,
		retriever: retriever,
		ingestor:  ingestor,
	}
}

// AskRequest 问答请求
type AskRequest struct {
	Question       string         `json:"question" binding:"required"`
	TopK           int            `json:"top_k"`
	ScoreThreshold *float64       `json:"score_threshold"`
	Filter         map[string]any `json:"filter"`
}

// SearchRequest 相似度检索请求, 只检索不生成回答
type SearchRequest struct {
	Query          string         `json:"query" binding:"required"`
	TopK           int            `json:"top_k"`
	ScoreThreshold *float64       `json:"score_threshold"`
	Filter         map[string]any `json:"filter"`
}

// SearchHit 检索结果条目
type SearchHit struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Count int         `json:"count"`
}

// DocumentResponse 文档信息
type DocumentResponse struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	ProcessedAt string `json:"processed_at,omitempty"`
}

// DocumentListResponse 文档分页列表
type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int64              `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
}

func toDocumentResponse(doc *ragcore.KnowledgeDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:          doc.ID,
		Source:      doc.Source,
		ContentType: doc.ContentType,
		FileSize:    doc.FileSize,
		Status:      doc.Status,
		ChunkCount:  doc.ChunkCount,
		Error:       doc.ErrorMessage,
		CreatedAt:   doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if doc.ProcessedAt != nil {
		resp.ProcessedAt = doc.ProcessedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}
