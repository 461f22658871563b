// Package logger 全局 zap 日志与 trace_id 上下文传递
package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.Logger

type contextKey string

const traceIDKey contextKey = "trace_id"

// Options 日志初始化参数
type Options struct {
	Level      string // debug / info / warn / error, 解析失败回落 info
	Format     string // json 或 console
	OutputPath string // stdout / stderr / 文件路径
}

// Init 按参数构建全局 Logger
func Init(opts Options) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	writer, err := newWriteSyncer(opts.OutputPath)
	if err != nil {
		return err
	}

	core := zapcore.NewCore(newEncoder(opts.Format), writer, level)
	globalLogger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func newWriteSyncer(outputPath string) (zapcore.WriteSyncer, error) {
	switch outputPath {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		return zapcore.AddSync(file), nil
	}
}

// Get 获取全局 Logger, 未初始化时返回空 Logger
func Get() *zap.Logger {
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// Named 获取带组件名称的 Logger, 方便组件在测试中独立构造
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// WithTraceID 把 trace_id 写入上下文
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID 从上下文读取 trace_id, 没有则返回空串
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 获取携带上下文 trace_id 字段的 Logger
func WithContext(ctx context.Context) *zap.Logger {
	log := Get()
	if traceID := GetTraceID(ctx); traceID != "" {
		log = log.With(zap.String("trace_id", traceID))
	}
	return log
}

// Sync 刷新日志缓冲区
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
