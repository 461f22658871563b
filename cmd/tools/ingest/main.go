// 命令行批量入库工具: 把目录下的文档全部写入知识库
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backend/api"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/logger"
	"backend/internal/rag"
)

func main() {
	env := flag.String("env", "dev", "运行环境 (dev, prod, test)")
	configPath := flag.String("config", "", "配置文件路径")
	dir := flag.String("dir", "", "要入库的文档目录 (必填)")
	timeout := flag.Duration("timeout", 30*time.Minute, "整体超时")
	flag.Parse()

	if *dir == "" {
		log.Fatal("必须指定 -dir")
	}

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
	if err := db.AutoMigrate(&rag.KnowledgeDocument{}); err != nil {
		zlog.Fatal("迁移表结构失败", zap.Error(err))
	}

	// 工具走同步处理, 不依赖队列
	services, err := api.BuildServices(api.Dependencies{Config: cfg, DB: db})
	if err != nil {
		zlog.Fatal("装配服务失败", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	n, err := services.Ingestor.IngestDirectory(ctx, *dir)
	if err != nil {
		zlog.Fatal("目录入库失败", zap.Error(err))
	}
	zlog.Info("入库完成", zap.String("dir", *dir), zap.Int("documents", n))
}
