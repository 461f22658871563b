package rag

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend/api/handlers/common"
)

// maxUploadSize 上传文件大小上限
const maxUploadSize = 20 << 20 // 20 MiB

// UploadDocument 上传文档
// @Summary 上传文档到知识库, 异步分块索引
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件 (.txt .md .html .pdf)"
// @Success 200 {object} common.Response{data=DocumentResponse}
// @Failure 400 {object} common.Response "文件类型或内容不合法"
// @Router /api/v1/rag/documents [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.Error(c, http.StatusBadRequest, "缺少文件字段 file")
		return
	}
	if fileHeader.Size > maxUploadSize {
		common.Error(c, http.StatusBadRequest, "文件超过大小限制 (20 MiB)")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.Error(c, http.StatusBadRequest, "读取上传文件失败")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		common.Error(c, http.StatusBadRequest, "读取上传文件失败")
		return
	}

	doc, err := h.ingestor.UploadDocument(c.Request.Context(), fileHeader.Filename, data, nil)
	if err != nil {
		common.FromError(c, err)
		return
	}
	resp := toDocumentResponse(doc)
	common.Success(c, resp)
}

// ListDocuments 文档列表
// @Summary 分页列出知识库文档
// @Tags documents
// @Produce json
// @Param page query int false "页码, 默认 1"
// @Param page_size query int false "每页数量, 默认 20"
// @Success 200 {object} common.Response{data=DocumentListResponse}
// @Router /api/v1/rag/documents [get]
func (h *Handler) ListDocuments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	docs, total, err := h.ingestor.ListDocuments(c.Request.Context(), page, pageSize)
	if err != nil {
		common.FromError(c, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = toDocumentResponse(&docs[i])
	}
	common.Success(c, DocumentListResponse{
		Documents: items,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// GetDocument 文档详情
// @Summary 查询单篇文档的索引状态
// @Tags documents
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} common.Response{data=DocumentResponse}
// @Failure 400 {object} common.Response "文档不存在"
// @Router /api/v1/rag/documents/{id} [get]
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.ingestor.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, toDocumentResponse(doc))
}

// DeleteDocument 删除文档
// @Summary 删除文档及其全部向量
// @Tags documents
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} common.Response
// @Router /api/v1/rag/documents/{id} [delete]
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.ingestor.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, gin.H{"deleted": true})
}

// ReprocessDocument 重新索引
// @Summary 重新分块并索引一篇文档
// @Tags documents
// @Produce json
// @Param id path string true "文档 ID"
// @Success 200 {object} common.Response{data=DocumentResponse}
// @Router /api/v1/rag/documents/{id}/reprocess [post]
func (h *Handler) ReprocessDocument(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingestor.ProcessDocument(c.Request.Context(), id); err != nil {
		common.FromError(c, err)
		return
	}

	doc, err := h.ingestor.GetDocument(c.Request.Context(), id)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, toDocumentResponse(doc))
}
