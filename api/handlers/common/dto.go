// Package common 统一的 HTTP 响应封装
package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/rag"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
		TraceID: logger.GetTraceID(c.Request.Context()),
	})
}

// Error 返回指定状态码的错误响应
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Code:    status,
		Message: message,
		TraceID: logger.GetTraceID(c.Request.Context()),
	})
}

// FromError 按错误类别映射状态码:
// 校验错误 400, 无相关上下文 404, 配置与提供商错误 500 (细节只进日志不出响应)
func FromError(c *gin.Context, err error) {
	switch {
	case rag.IsValidationError(err):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, rag.ErrNoRelevantContext):
		Error(c, http.StatusNotFound,
			"没有找到与问题相关的资料, 请换个问法或先上传相关文档")
	case rag.IsConfigError(err):
		logger.WithContext(c.Request.Context()).Error("配置错误", zap.Error(err))
		Error(c, http.StatusInternalServerError, "服务配置异常, 请联系管理员")
	case rag.IsProviderError(err):
		logger.WithContext(c.Request.Context()).Error("外部服务调用失败", zap.Error(err))
		Error(c, http.StatusInternalServerError, "上游服务暂时不可用, 请稍后重试")
	default:
		logger.WithContext(c.Request.Context()).Error("未分类错误", zap.Error(err))
		Error(c, http.StatusInternalServerError, "服务内部错误")
	}
}
