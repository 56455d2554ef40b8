package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/readiness"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

type OrderService interface {
	PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error)
	GetOrder(ctx context.Context, id int) (*models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]models.OrderSummary, error)
}

type OrderHandler struct {
	service      OrderService
	dependencies map[string]readiness.Checker
	serviceName  string
	logger       *zap.Logger
}

// NewOrderHandler builds the order endpoints. dependencies are pinged by the
// readiness check.
func NewOrderHandler(svc OrderService, dependencies map[string]readiness.Checker, serviceName string, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:      svc,
		dependencies: dependencies,
		serviceName:  serviceName,
		logger:       logger,
	}
}

// HealthCheck returns server status
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.serviceName})
}

// Readiness reports whether every backing dependency answers.
func (h *OrderHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	statuses, ok := readiness.Check(ctx, h.dependencies)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "dependencies": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "dependencies": statuses})
}

// ListOrders returns the most recent orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, errValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.service.ListOrders(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder returns a single order with items
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, errValidation, "invalid order ID")
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CreateOrder places an order and queues it for fulfillment
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errValidation, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
