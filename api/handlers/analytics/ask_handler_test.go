package analytics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ana "backend/internal/analytics"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(ana.AllModels()...))

	require.NoError(t, db.Create(&ana.Customer{
		ID: 1, Name: "Acme", Email: "acme@example.com", Segment: "enterprise", Region: "east",
	}).Error)
	require.NoError(t, db.Create(&ana.Order{
		ID: 1, CustomerID: 1, OrderDate: time.Now().AddDate(0, -1, 0), Status: "delivered",
	}).Error)
	require.NoError(t, db.Create(&ana.OrderItem{
		ID: 1, OrderID: 1, ProductID: 1, Quantity: 2, UnitPrice: 50,
	}).Error)

	svc, err := ana.NewService(db)
	require.NoError(t, err)

	h := NewHandler(svc)
	router := gin.New()
	router.GET("/analytics/queries", h.ListQueries)
	router.POST("/analytics/query", h.RunQuery)
	return router
}

func TestListQueries(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/analytics/queries", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 5)
	assert.Contains(t, resp.Data, "top_customers_ltv")
	assert.Contains(t, resp.Data, "repeat_purchase_rate")
}

func postQuery(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/analytics/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRunQuery_HappyPath(t *testing.T) {
	router := newTestRouter(t)

	w := postQuery(t, router, gin.H{
		"query_type": "top_customers_ltv",
		"params":     gin.H{"limit": 5},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data ana.QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.RowCount)
	assert.Equal(t, "Acme", resp.Data.Rows[0]["customer"])
}

func TestRunQuery_Validation(t *testing.T) {
	router := newTestRouter(t)

	w := postQuery(t, router, gin.H{"query_type": "no_such_query"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postQuery(t, router, gin.H{
		"query_type": "top_customers_ltv",
		"params":     gin.H{"limit": 0},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postQuery(t, router, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
