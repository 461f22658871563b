package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"backend/internal/logger"
)

// slowQueryThreshold 慢查询告警阈值
const slowQueryThreshold = 200 * time.Millisecond

// GormZapLogger 把 GORM 日志桥接到 zap
type GormZapLogger struct {
	level gormlogger.LogLevel
}

// NewGormZapLogger 创建 GORM 日志桥
func NewGormZapLogger() *GormZapLogger {
	return &GormZapLogger{level: gormlogger.Warn}
}

// LogMode 实现 gormlogger.Interface
func (l *GormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormZapLogger{level: level}
}

func (l *GormZapLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		logger.Named("gorm").Sugar().Infof(msg, args...)
	}
}

func (l *GormZapLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		logger.Named("gorm").Sugar().Warnf(msg, args...)
	}
}

func (l *GormZapLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		logger.Named("gorm").Sugar().Errorf(msg, args...)
	}
}

// Trace 记录 SQL 执行, 慢查询与错误升级日志级别
func (l *GormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := logger.Named("gorm")

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Error("SQL 执行失败",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	case elapsed > slowQueryThreshold:
		log.Warn("慢查询",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		log.Debug("SQL 执行",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed))
	}
}
