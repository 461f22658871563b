// Package analytics 预置销售分析接口
package analytics

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/api/handlers/common"
	ana "backend/internal/analytics"
)

// Handler 分析查询接口处理器
type Handler struct {
	service *ana.Service
}

// NewHandler 创建分析查询处理器
func NewHandler(service *ana.Service) *Handler {
	return &Handler{service: service}
}

// QueryRequest 预置查询请求
type QueryRequest struct {
	QueryType string         `json:"query_type" binding:"required"`
	Params    map[string]any `json:"params"`
}

// ListQueries 可用查询列表
// @Summary 列出全部预置分析查询
// @Tags analytics
// @Produce json
// @Success 200 {object} common.Response{data=[]string}
// @Router /api/v1/analytics/queries [get]
func (h *Handler) ListQueries(c *gin.Context) {
	types := ana.QueryTypes()
	names := make([]string, len(types))
	for i, qt := range types {
		names[i] = string(qt)
	}
	common.Success(c, names)
}

// RunQuery 执行预置查询
// @Summary 执行一条预置分析查询
// @Tags analytics
// @Accept json
// @Produce json
// @Param request body QueryRequest true "查询请求"
// @Success 200 {object} common.Response{data=ana.QueryResult}
// @Failure 400 {object} common.Response "未知查询或参数越界"
// @Router /api/v1/analytics/query [post]
func (h *Handler) RunQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "请求格式错误: "+err.Error())
		return
	}

	result, err := h.service.Run(c.Request.Context(), ana.QueryType(req.QueryType), req.Params)
	if err != nil {
		common.FromError(c, err)
		return
	}
	common.Success(c, result)
}
