package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"go.uber.org/zap"
)

const (
	errValidation        = "validation_error"
	errNotFound          = "not_found"
	errInsufficientStock = "insufficient_stock"
	errStore             = "store_error"
	errInternal          = "internal_error"
)

func abortWithError(c *gin.Context, status int, category, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": category, "message": message})
}

// respondError maps a service error onto a status code and error category.
// Store and unknown errors are logged and reported without their details.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation   *service.ValidationError
		notFound     *service.NotFoundError
		insufficient *service.InsufficientStockError
		store        *service.StoreError
	)
	switch {
	case errors.As(err, &validation):
		abortWithError(c, http.StatusBadRequest, errValidation, validation.Error())
	case errors.As(err, &notFound):
		abortWithError(c, http.StatusNotFound, errNotFound, notFound.Error())
	case errors.As(err, &insufficient):
		abortWithError(c, http.StatusConflict, errInsufficientStock, insufficient.Error())
	case errors.As(err, &store):
		logger.Error("❌ Store failure", zap.String("request_id", requestID(c)), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, errStore, "failed to "+store.Op)
	default:
		logger.Error("❌ Unexpected error", zap.String("request_id", requestID(c)), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, errInternal, "internal server error")
	}
}
