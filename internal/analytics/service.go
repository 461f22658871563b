package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/rag"
)

// forbiddenSQLRe 写操作关键字黑名单。
// 模板本身是只读的, 这里是对模板被误改的二次防线。
var forbiddenSQLRe = regexp.MustCompile(
	`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke)\b|;`)

// QueryResult 预置查询的执行结果
type QueryResult struct {
	QueryType QueryType        `json:"query_type"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	LatencyMS int64            `json:"latency_ms"`
}

// Service 预置分析查询执行器, 只读访问业务库
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewService 创建分析查询执行器
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, rag.NewConfigError("analytics", "缺少数据库连接")
	}
	return &Service{db: db, log: logger.Named("analytics")}, nil
}

// Run 执行一条预置查询。
// SQL 在只读事务中执行, 且过写关键字黑名单后才会提交给数据库。
func (s *Service) Run(ctx context.Context, queryType QueryType, params map[string]any) (*QueryResult, error) {
	start := time.Now()

	query, args, err := BuildQuery(queryType, params)
	if err != nil {
		metrics.AnalyticsQueriesTotal.WithLabelValues(string(queryType), "invalid").Inc()
		return nil, err
	}
	if forbiddenSQLRe.MatchString(query) {
		metrics.AnalyticsQueriesTotal.WithLabelValues(string(queryType), "blocked").Inc()
		return nil, fmt.Errorf("查询模板包含被禁止的写操作关键字")
	}

	rows, err := s.runReadOnly(ctx, query, args)
	if err != nil {
		metrics.AnalyticsQueriesTotal.WithLabelValues(string(queryType), "error").Inc()
		return nil, err
	}

	var columns []string
	if len(rows) > 0 {
		columns = columnOrder(query)
	}
	elapsed := time.Since(start)

	metrics.AnalyticsQueriesTotal.WithLabelValues(string(queryType), "ok").Inc()
	s.log.Info("预置查询完成",
		zap.String("query_type", string(queryType)),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", elapsed))

	return &QueryResult{
		QueryType: queryType,
		Columns:   columns,
		Rows:      rows,
		RowCount:  len(rows),
		LatencyMS: elapsed.Milliseconds(),
	}, nil
}

// runReadOnly 在只读事务中执行查询。
// 驱动不支持只读事务时退回普通事务, 模板经过黑名单兜底。
func (s *Service) runReadOnly(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{ReadOnly: true})
	if tx.Error != nil {
		tx = s.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("开启事务失败: %w", tx.Error)
		}
	}
	defer tx.Rollback()

	sqlRows, err := tx.Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("执行查询失败: %w", err)
	}
	defer sqlRows.Close()

	return scanRows(sqlRows)
}

// scanRows 把结果集读成列名到值的映射
func scanRows(sqlRows *sql.Rows) ([]map[string]any, error) {
	cols, err := sqlRows.Columns()
	if err != nil {
		return nil, fmt.Errorf("读取结果列失败: %w", err)
	}

	var out []map[string]any
	for sqlRows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("读取结果行失败: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, sqlRows.Err()
}

// columnOrder 从 SELECT 子句恢复列的声明顺序
func columnOrder(query string) []string {
	upper := strings.ToUpper(query)
	selectIdx := strings.Index(upper, "SELECT")
	fromIdx := strings.Index(upper, "FROM")
	if selectIdx < 0 || fromIdx < 0 || fromIdx <= selectIdx {
		return nil
	}

	var columns []string
	depth := 0
	field := strings.Builder{}
	flush := func() {
		expr := strings.TrimSpace(field.String())
		field.Reset()
		if expr == "" {
			return
		}
		parts := strings.Fields(expr)
		name := parts[len(parts)-1]
		columns = append(columns, strings.ToLower(name))
	}

	for _, r := range query[selectIdx+len("SELECT") : fromIdx] {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		field.WriteRune(r)
	}
	flush()
	return columns
}
