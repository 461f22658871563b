package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"backend/internal/logger"
)

// TraceMiddleware 为每个请求生成 TraceID 并注入上下文
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(
			logger.WithTraceID(c.Request.Context(), traceID))
		c.Header("X-Trace-ID", traceID)
		c.Next()
	}
}

// LoggerMiddleware 请求访问日志
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithContext(c.Request.Context()).Info("HTTP 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// RecoveryMiddleware panic 恢复, 统一返回 500
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(c.Request.Context()).Error("请求处理 panic",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域支持
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
