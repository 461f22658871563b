package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backend/api"
	"backend/internal/analytics"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/rag"
	"backend/internal/worker"
)

func main() {
	env := flag.String("env", "dev", "运行环境 (dev, prod, test)")
	configPath := flag.String("config", "", "配置文件路径, 留空按环境名查找")
	flag.Parse()

	// .env 不存在时静默跳过
	_ = godotenv.Load()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	}); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()
	zlog := logger.Get()

	db, err := infra.NewDatabase(cfg)
	if err != nil {
		zlog.Fatal("初始化数据库失败", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		models := append(analytics.AllModels(), &rag.KnowledgeDocument{})
		if err := db.AutoMigrate(models...); err != nil {
			zlog.Fatal("迁移表结构失败", zap.Error(err))
		}
	}

	// Redis 不可用时降级: 嵌入缓存退化为进程内, 文档处理走同步
	rdb, err := infra.NewRedis(cfg)
	if err != nil {
		zlog.Warn("Redis 不可用, 缓存与队列降级", zap.Error(err))
		rdb = nil
	}

	deps := api.Dependencies{Config: cfg, DB: db, Redis: rdb}

	var queueClient *queue.Client
	if rdb != nil {
		queueClient = queue.NewClient(infra.RedisAddr(&cfg.Redis), cfg.Redis.Password, cfg.Redis.DB)
		defer queueClient.Close()
		deps.Queue = queueClient
	}

	services, err := api.BuildServices(deps)
	if err != nil {
		zlog.Fatal("装配服务失败", zap.Error(err))
	}

	var workerSrv *worker.Server
	if rdb != nil {
		workerSrv = worker.NewServer(
			infra.RedisAddr(&cfg.Redis), cfg.Redis.Password, cfg.Redis.DB,
			services.Ingestor)
		if err := workerSrv.Start(); err != nil {
			zlog.Fatal("启动任务消费失败", zap.Error(err))
		}
	}

	router := api.NewRouter(cfg, services)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		zlog.Info("HTTP 服务启动", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP 服务异常退出", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("收到退出信号, 开始优雅关停")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if workerSrv != nil {
		workerSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP 服务关停超时", zap.Error(err))
	}
	zlog.Info("服务已退出")
}
