// Package worker 异步任务消费服务
package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/rag"
	"backend/internal/worker/handlers"
	"backend/internal/worker/tasks"
)

// Server 封装 asynq 消费端, 注册所有任务处理器
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.Logger
}

// NewServer 创建任务消费服务
func NewServer(redisAddr, password string, db int, ingestor *rag.Ingestor) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				tasks.QueueIngest:  5,
				tasks.QueueDefault: 1,
			},
			Logger: newAsynqLogger(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeIngestProcessDocument,
		handlers.NewIngestHandler(ingestor).HandleProcessDocument)

	return &Server{
		srv: srv,
		mux: mux,
		log: logger.Named("worker"),
	}
}

// Start 启动消费循环, 非阻塞
func (s *Server) Start() error {
	s.log.Info("任务消费服务启动")
	return s.srv.Start(s.mux)
}

// Shutdown 优雅关停, 等待在途任务完成
func (s *Server) Shutdown(_ context.Context) {
	s.log.Info("任务消费服务关停")
	s.srv.Shutdown()
}

// asynqLogger 把 asynq 内部日志桥接到 zap
type asynqLogger struct {
	log *zap.SugaredLogger
}

func newAsynqLogger() *asynqLogger {
	return &asynqLogger{log: logger.Named("asynq").Sugar()}
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(args...) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(args...) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(args...) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(args...) }
func (l *asynqLogger) Fatal(args ...any) { l.log.Fatal(args...) }
