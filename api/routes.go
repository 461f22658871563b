package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analyticshandler "backend/api/handlers/analytics"
	raghandler "backend/api/handlers/rag"
	"backend/internal/config"
	"backend/internal/metrics"
)

// NewRouter 装配路由与中间件
func NewRouter(cfg *config.Config, services *Services) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(
		RecoveryMiddleware(),
		TraceMiddleware(),
		LoggerMiddleware(),
		CORSMiddleware(),
		metrics.GinMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if services.DB != nil {
			sqlDB, err := services.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ragH := raghandler.NewHandler(services.Answerer, services.Retriever, services.Ingestor)
	anaH := analyticshandler.NewHandler(services.Analytics)

	v1 := router.Group("/api/v1")
	{
		ragGroup := v1.Group("/rag")
		{
			ragGroup.POST("/ask", ragH.Ask)
			ragGroup.POST("/search", ragH.Search)
			ragGroup.GET("/stats", ragH.Stats)

			ragGroup.POST("/documents", ragH.UploadDocument)
			ragGroup.GET("/documents", ragH.ListDocuments)
			ragGroup.GET("/documents/:id", ragH.GetDocument)
			ragGroup.DELETE("/documents/:id", ragH.DeleteDocument)
			ragGroup.POST("/documents/:id/reprocess", ragH.ReprocessDocument)
		}

		anaGroup := v1.Group("/analytics")
		{
			anaGroup.GET("/queries", anaH.ListQueries)
			anaGroup.POST("/query", anaH.RunQuery)
		}
	}

	return router
}
