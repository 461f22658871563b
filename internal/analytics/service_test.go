package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"backend/internal/rag"
)

func newAnalyticsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

// seedFixture 三个客户: 两个企业客户复购, 一个消费者单次购买
func seedFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Now()

	require.NoError(t, db.Create([]Product{
		{ID: 1, Name: "Widget", Category: "hardware", Price: 100},
		{ID: 2, Name: "Gadget", Category: "hardware", Price: 50},
	}).Error)

	require.NoError(t, db.Create([]Customer{
		{ID: 1, Name: "Acme Corp", Email: "acme@example.com", Segment: "enterprise", Region: "east"},
		{ID: 2, Name: "Globex", Email: "globex@example.com", Segment: "enterprise", Region: "west"},
		{ID: 3, Name: "Jane Doe", Email: "jane@example.com", Segment: "consumer", Region: "east"},
	}).Error)

	require.NoError(t, db.Create([]Order{
		{ID: 1, CustomerID: 1, OrderDate: now.AddDate(0, -1, 0), Status: "delivered"},
		{ID: 2, CustomerID: 1, OrderDate: now.AddDate(0, -2, 0), Status: "delivered"},
		{ID: 3, CustomerID: 2, OrderDate: now.AddDate(0, -1, 0), Status: "delivered"},
		{ID: 4, CustomerID: 2, OrderDate: now.AddDate(0, -3, 0), Status: "shipped"},
		{ID: 5, CustomerID: 3, OrderDate: now.AddDate(0, 0, -10), Status: "delivered"},
		{ID: 6, CustomerID: 3, OrderDate: now.AddDate(0, 0, -5), Status: "cancelled"},
	}).Error)

	require.NoError(t, db.Create([]OrderItem{
		{ID: 1, OrderID: 1, ProductID: 1, Quantity: 2, UnitPrice: 100},
		{ID: 2, OrderID: 2, ProductID: 2, Quantity: 4, UnitPrice: 50},
		{ID: 3, OrderID: 3, ProductID: 1, Quantity: 1, UnitPrice: 100},
		{ID: 4, OrderID: 4, ProductID: 2, Quantity: 2, UnitPrice: 50},
		{ID: 5, OrderID: 5, ProductID: 1, Quantity: 1, UnitPrice: 100},
		{ID: 6, OrderID: 6, ProductID: 1, Quantity: 9, UnitPrice: 100},
	}).Error)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := newAnalyticsDB(t)
	seedFixture(t, db)
	svc, err := NewService(db)
	require.NoError(t, err)
	return svc
}

func TestBuildQuery_UnknownType(t *testing.T) {
	_, _, err := BuildQuery("drop_everything", nil)
	require.Error(t, err)
	assert.True(t, rag.IsValidationError(err))
}

func TestBuildQuery_LimitValidation(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		ok     bool
	}{
		{"默认值", nil, true},
		{"整数", map[string]any{"limit": 10}, true},
		{"JSON 浮点整数", map[string]any{"limit": float64(7)}, true},
		{"零", map[string]any{"limit": 0}, false},
		{"负数", map[string]any{"limit": -3}, false},
		{"超上限", map[string]any{"limit": 51}, false},
		{"非整数浮点", map[string]any{"limit": 2.5}, false},
		{"字符串", map[string]any{"limit": "5"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := BuildQuery(QueryTopProductsLast90Days, tc.params)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, rag.IsValidationError(err))
			}
		})
	}
}

func TestBuildQuery_TopCustomersLimitRange(t *testing.T) {
	_, args, err := BuildQuery(QueryTopCustomersLTV, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{10}, args)

	_, _, err = BuildQuery(QueryTopCustomersLTV, map[string]any{"limit": 100})
	assert.NoError(t, err)

	_, _, err = BuildQuery(QueryTopCustomersLTV, map[string]any{"limit": 101})
	assert.True(t, rag.IsValidationError(err))
}

func TestBuildQuery_TemplatesPassDenylist(t *testing.T) {
	for _, qt := range QueryTypes() {
		query, _, err := BuildQuery(qt, nil)
		require.NoError(t, err)
		assert.False(t, forbiddenSQLRe.MatchString(query),
			"模板 %s 不应命中写关键字黑名单", qt)
	}
}

func TestRun_RepeatPurchaseRate(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), QueryRepeatPurchaseRate, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount)

	row := res.Rows[0]
	// 三个客户中两个 (Acme, Globex) 有多笔有效订单; Jane 的第二笔被取消
	assert.EqualValues(t, 3, toInt64(t, row["total_customers"]))
	assert.EqualValues(t, 2, toInt64(t, row["repeat_customers"]))
	assert.InDelta(t, 0.6667, toFloat64(t, row["repeat_rate"]), 0.001)
}

func TestRun_AvgOrderValueBySegment(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), QueryAvgOrderValueBySegment, nil)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount)

	bySegment := map[string]float64{}
	for _, row := range res.Rows {
		bySegment[row["segment"].(string)] = toFloat64(t, row["avg_order_value"])
	}
	// enterprise: (200+200+100+100)/4 = 150; consumer: 100/1 = 100
	assert.InDelta(t, 150, bySegment["enterprise"], 0.01)
	assert.InDelta(t, 100, bySegment["consumer"], 0.01)
}

func TestRun_TopCustomersLTV(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(context.Background(), QueryTopCustomersLTV, map[string]any{"limit": 2})
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount)

	// Acme 400 > Globex 300, 取消订单不计入
	assert.Equal(t, "Acme Corp", res.Rows[0]["customer"])
	assert.InDelta(t, 400, toFloat64(t, res.Rows[0]["lifetime_value"]), 0.01)
	assert.Equal(t, "Globex", res.Rows[1]["customer"])

	assert.Contains(t, res.Columns, "customer")
	assert.Contains(t, res.Columns, "lifetime_value")
	assert.GreaterOrEqual(t, res.LatencyMS, int64(0))
}

func TestRun_InvalidParamsRejected(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Run(context.Background(), QueryTopCustomersLTV, map[string]any{"limit": -1})
	require.Error(t, err)
	assert.True(t, rag.IsValidationError(err))

	_, err = svc.Run(context.Background(), "no_such_query", nil)
	assert.True(t, rag.IsValidationError(err))
}

func toInt64(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		var out int64
		_, err := fmt.Sscan(n, &out)
		require.NoError(t, err)
		return out
	default:
		t.Fatalf("意外的数值类型 %T", v)
		return 0
	}
}

func toFloat64(t *testing.T, v any) float64 {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		var out float64
		_, err := fmt.Sscan(n, &out)
		require.NoError(t, err)
		return out
	default:
		t.Fatalf("意外的数值类型 %T", v)
		return 0
	}
}
