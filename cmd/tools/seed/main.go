// 命令行造数工具: 为分析查询生成演示用的销售数据
package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/logger"
	"backend/internal/seed"
)

func main() {
	env := flag.String("env", "dev", "运行环境 (dev, prod, test)")
	configPath := flag.String("config", "", "配置文件路径")
	products := flag.Int("products", 40, "商品数量")
	customers := flag.Int("customers", 200, "客户数量")
	orders := flag.Int("orders", 1500, "订单数量")
	seedVal := flag.Int64("seed", 0, "随机种子, 0 表示随机")
	flag.Parse()

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

	seeder := seed.New(db, *seedVal)
	if err := seeder.Run(seed.Options{
		Products:  *products,
		Customers: *customers,
		Orders:    *orders,
	}); err != nil {
		zlog.Fatal("造数失败", zap.Error(err))
	}
	zlog.Info("造数完成",
		zap.Int("products", *products),
		zap.Int("customers", *customers),
		zap.Int("orders", *orders))
}
