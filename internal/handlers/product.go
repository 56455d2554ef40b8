package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog db.ProductReader
	logger  *zap.Logger
}

func NewProductHandler(catalog db.ProductReader, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// ListProducts returns the catalog, served from cache when possible
func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, &service.StoreError{Op: "list products", Err: err})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct returns a single product
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, errValidation, "invalid product ID")
		return
	}

	product, err := h.catalog.GetByID(c.Request.Context(), id)
	if errors.Is(err, db.ErrProductNotFound) {
		respondError(c, h.logger, &service.NotFoundError{Resource: "product", ID: id})
		return
	}
	if err != nil {
		respondError(c, h.logger, &service.StoreError{Op: "get product", Err: err})
		return
	}

	c.JSON(http.StatusOK, product)
}
