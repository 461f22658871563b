package analytics

import (
	"fmt"

	"backend/internal/rag"
)

// QueryType 预置查询类型
type QueryType string

// 支持的预置查询
const (
	QueryTopProductsLast90Days  QueryType = "top_products_last_90_days"
	QueryMonthlyRevenueLast12M  QueryType = "monthly_revenue_last_12m"
	QueryRepeatPurchaseRate     QueryType = "repeat_purchase_rate"
	QueryAvgOrderValueBySegment QueryType = "avg_order_value_by_segment"
	QueryTopCustomersLTV        QueryType = "top_customers_ltv"
)

// 营收统计排除的订单状态
const excludedOrderStatuses = "('cancelled', 'returned')"

// QueryTypes 全部预置查询类型
func QueryTypes() []QueryType {
	return []QueryType{
		QueryTopProductsLast90Days,
		QueryMonthlyRevenueLast12M,
		QueryRepeatPurchaseRate,
		QueryAvgOrderValueBySegment,
		QueryTopCustomersLTV,
	}
}

// BuildQuery 把查询类型和参数装配成参数化 SQL。
// 未知类型和越界参数返回校验错误, SQL 本体不接受任何用户输入。
func BuildQuery(queryType QueryType, params map[string]any) (string, []any, error) {
	switch queryType {
	case QueryTopProductsLast90Days:
		limit, err := limitParam(params, 5, 1, 50)
		if err != nil {
			return "", nil, err
		}
		query := `
			SELECT p.name AS product, SUM(oi.quantity) AS units_sold,
			       SUM(oi.quantity * oi.unit_price) AS revenue
			FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			JOIN products p ON p.id = oi.product_id
			WHERE o.order_date >= NOW() - INTERVAL '90 days'
			  AND o.status NOT IN ` + excludedOrderStatuses + `
			GROUP BY p.name
			ORDER BY revenue DESC
			LIMIT ?`
		return query, []any{limit}, nil

	case QueryMonthlyRevenueLast12M:
		query := `
			SELECT to_char(date_trunc('month', o.order_date), 'YYYY-MM') AS month,
			       SUM(oi.quantity * oi.unit_price) AS revenue,
			       COUNT(DISTINCT o.id) AS orders
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.order_date >= date_trunc('month', NOW()) - INTERVAL '12 months'
			  AND o.status NOT IN ` + excludedOrderStatuses + `
			GROUP BY 1
			ORDER BY 1`
		return query, nil, nil

	case QueryRepeatPurchaseRate:
		query := `
			SELECT COUNT(*) AS total_customers,
			       SUM(CASE WHEN order_count > 1 THEN 1 ELSE 0 END) AS repeat_customers,
			       ROUND(1.0 * SUM(CASE WHEN order_count > 1 THEN 1 ELSE 0 END) /
			             NULLIF(COUNT(*), 0), 4) AS repeat_rate
			FROM (
				SELECT customer_id, COUNT(*) AS order_count
				FROM orders
				WHERE status NOT IN ` + excludedOrderStatuses + `
				GROUP BY customer_id
			) per_customer`
		return query, nil, nil

	case QueryAvgOrderValueBySegment:
		query := `
			SELECT c.segment, COUNT(DISTINCT o.id) AS orders,
			       ROUND(1.0 * SUM(oi.quantity * oi.unit_price) /
			             NULLIF(COUNT(DISTINCT o.id), 0), 2) AS avg_order_value
			FROM orders o
			JOIN customers c ON c.id = o.customer_id
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.status NOT IN ` + excludedOrderStatuses + `
			GROUP BY c.segment
			ORDER BY avg_order_value DESC`
		return query, nil, nil

	case QueryTopCustomersLTV:
		limit, err := limitParam(params, 10, 1, 100)
		if err != nil {
			return "", nil, err
		}
		query := `
			SELECT c.name AS customer, c.segment, c.region,
			       SUM(oi.quantity * oi.unit_price) AS lifetime_value,
			       COUNT(DISTINCT o.id) AS orders
			FROM customers c
			JOIN orders o ON o.customer_id = c.id
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.status NOT IN ` + excludedOrderStatuses + `
			GROUP BY c.id, c.name, c.segment, c.region
			ORDER BY lifetime_value DESC
			LIMIT ?`
		return query, []any{limit}, nil

	default:
		return "", nil, rag.NewValidationError("query_type",
			fmt.Sprintf("未知查询类型: %s", queryType))
	}
}

// limitParam 解析并校验 limit 参数, 缺省用默认值
func limitParam(params map[string]any, def, min, max int) (int, error) {
	raw, ok := params["limit"]
	if !ok || raw == nil {
		return def, nil
	}

	var limit int
	switch v := raw.(type) {
	case int:
		limit = v
	case int64:
		limit = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, rag.NewValidationError("limit", fmt.Sprintf("limit 必须是整数, 实际 %v", v))
		}
		limit = int(v)
	default:
		return 0, rag.NewValidationError("limit", fmt.Sprintf("limit 必须是整数, 实际 %T", raw))
	}

	if limit < min || limit > max {
		return 0, rag.NewValidationError("limit",
			fmt.Sprintf("limit 必须在 %d 到 %d 之间, 实际 %d", min, max, limit))
	}
	return limit, nil
}
