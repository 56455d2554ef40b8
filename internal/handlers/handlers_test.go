package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/readiness"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noopInvalidator struct{ calls int }

func (n *noopInvalidator) Invalidate(context.Context) error {
	n.calls++
	return nil
}

type recordingPublisher struct {
	messages []models.OrderPlacedMessage
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, msg models.OrderPlacedMessage) error {
	p.messages = append(p.messages, msg)
	return nil
}

type testServer struct {
	router    *gin.Engine
	store     *db.MemoryStore
	publisher *recordingPublisher
	cache     *noopInvalidator
}

func newTestServer(t *testing.T, deps map[string]readiness.Checker) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemoryStore()
	pub := &recordingPublisher{}
	inv := &noopInvalidator{}
	logger := zap.NewNop()

	svc := service.NewOrderService(store, store.Orders(), inv, pub, logger)
	router := NewRouter(
		NewOrderHandler(svc, deps, "order-service", logger),
		NewProductHandler(store, logger),
		logger,
		CORS([]string{"http://localhost:3000"}),
	)
	return &testServer{router: router, store: store, publisher: pub, cache: inv}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error, body.Message
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"order-service"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestReadiness(t *testing.T) {
	t.Run("all dependencies up", func(t *testing.T) {
		s := newTestServer(t, map[string]readiness.Checker{
			"postgres": readiness.CheckerFunc(func(context.Context) error { return nil }),
		})

		w := s.do(t, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ready","dependencies":{"postgres":"up"}}`, w.Body.String())
	})

	t.Run("one dependency down", func(t *testing.T) {
		s := newTestServer(t, map[string]readiness.Checker{
			"postgres": readiness.CheckerFunc(func(context.Context) error { return nil }),
			"rabbitmq": readiness.CheckerFunc(func(context.Context) error { return errors.New("connection closed") }),
		})

		w := s.do(t, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection closed")
	})
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.AddProduct("Croissant", "Buttery", decimal.RequireFromString("3.00"), 5)

	w := s.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Products, 1)
	assert.Equal(t, "Croissant", body.Products[0].Name)
	assert.True(t, body.Products[0].Price.Equal(decimal.RequireFromString("3.00")))
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.store.AddProduct("Baguette", "", decimal.RequireFromString("2.75"), 3)

	w := s.do(t, http.MethodGet, "/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, p.ID, got.ID)

	w = s.do(t, http.MethodGet, "/products/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	category, _ := decodeError(t, w)
	assert.Equal(t, errNotFound, category)

	w = s.do(t, http.MethodGet, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.AddProduct("Croissant", "", decimal.RequireFromString("3.00"), 5)

	w := s.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":  "Ann",
		"customer_email": "a@x.com",
		"items":          []map[string]int{{"product_id": 1, "quantity": 2}},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"order_id":1,"status":"pending"}`, w.Body.String())
	require.Len(t, s.publisher.messages, 1)
	assert.Equal(t, 1, s.cache.calls)

	w = s.do(t, http.MethodGet, "/orders/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("6.00")))
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Croissant", order.Items[0].ProductName)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		status   int
		category string
	}{
		{
			name:     "malformed json",
			body:     `{"customer_name":`,
			status:   http.StatusBadRequest,
			category: errValidation,
		},
		{
			name:     "missing email",
			body:     map[string]any{"customer_name": "Ann", "items": []map[string]int{{"product_id": 1, "quantity": 1}}},
			status:   http.StatusBadRequest,
			category: errValidation,
		},
		{
			name:     "no items",
			body:     map[string]any{"customer_name": "Ann", "customer_email": "a@x.com", "items": []any{}},
			status:   http.StatusBadRequest,
			category: errValidation,
		},
		{
			name:     "unknown product",
			body:     map[string]any{"customer_name": "Ann", "customer_email": "a@x.com", "items": []map[string]int{{"product_id": 42, "quantity": 1}}},
			status:   http.StatusNotFound,
			category: errNotFound,
		},
		{
			name:     "not enough stock",
			body:     map[string]any{"customer_name": "Ann", "customer_email": "a@x.com", "items": []map[string]int{{"product_id": 1, "quantity": 9}}},
			status:   http.StatusConflict,
			category: errInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			s.store.AddProduct("Croissant", "", decimal.RequireFromString("3.00"), 5)

			w := s.do(t, http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.status, w.Code)
			category, message := decodeError(t, w)
			assert.Equal(t, tt.category, category)
			assert.NotEmpty(t, message)
			assert.Empty(t, s.publisher.messages)
		})
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/orders/7", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	category, message := decodeError(t, w)
	assert.Equal(t, errNotFound, category)
	assert.Equal(t, "order with ID 7 not found", message)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.AddProduct("Croissant", "", decimal.RequireFromString("3.00"), 10)
	for range 3 {
		w := s.do(t, http.MethodPost, "/orders", map[string]any{
			"customer_name":  "Ann",
			"customer_email": "a@x.com",
			"items":          []map[string]int{{"product_id": 1, "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/orders?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Orders []models.OrderSummary `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Orders, 2)
	assert.Equal(t, 3, body.Orders[0].ID)

	w = s.do(t, http.MethodGet, "/orders?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(zap.NewNop()))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"internal server error"}`, w.Body.String())
}

func TestMoneyIsEncodedAsTwoPlaceNumber(t *testing.T) {
	s := newTestServer(t, nil)
	s.store.AddProduct("Croissant", "", decimal.RequireFromString("3"), 5)

	w := s.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":3.00`)

	var products struct {
		Products []map[string]any `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products.Products, 1)
	assert.IsType(t, float64(0), products.Products[0]["price"])

	w = s.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":  "Ann",
		"customer_email": "a@x.com",
		"items":          []map[string]int{{"product_id": 1, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/orders/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"total":6.00`)
	assert.Contains(t, body, `"unit_price":3.00`)
	assert.Contains(t, body, `"total_price":6.00`)

	w = s.do(t, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":6.00`)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("simple request from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
