package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the order-service routes. Extra middleware, such as CORS,
// runs after request logging and recovery.
func NewRouter(orders *OrderHandler, products *ProductHandler, logger *zap.Logger, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AccessLog(logger), Recovery(logger))
	router.Use(middleware...)

	router.GET("/health", orders.HealthCheck)
	router.GET("/ready", orders.Readiness)

	router.GET("/products", products.ListProducts)
	router.GET("/products/:id", products.GetProduct)

	router.GET("/orders", orders.ListOrders)
	router.GET("/orders/:id", orders.GetOrder)
	router.POST("/orders", orders.CreateOrder)

	return router
}
