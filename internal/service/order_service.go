package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultPlacementTimeout  = 10 * time.Second
	defaultSideEffectTimeout = 5 * time.Second
	defaultListLimit         = 20
	maxListLimit             = 100
)

type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type OrderPublisher interface {
	PublishOrderPlaced(ctx context.Context, msg models.OrderPlacedMessage) error
}

type OrderService struct {
	store     db.OrderStore
	orders    db.OrderReader
	catalog   CacheInvalidator
	publisher OrderPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	// sideTimeout bounds cache invalidation and publishing after commit.
	sideTimeout time.Duration
}

type Option func(*OrderService)

// WithPlacementTimeout bounds how long a placement transaction may run.
func WithPlacementTimeout(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSideEffectTimeout bounds the cache invalidation and publish that follow
// a committed placement.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.sideTimeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *OrderService) {
		s.tracer = t
	}
}

func NewOrderService(store db.OrderStore, orders db.OrderReader, catalog CacheInvalidator, pub OrderPublisher, logger *zap.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		store:     store,
		orders:    orders,
		catalog:   catalog,
		publisher: pub,
		logger:    logger,
		tracer:    otel.Tracer("orderflow/service"),
		timeout:   defaultPlacementTimeout,

		sideTimeout: defaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder reserves stock for every item and records the order in one
// transaction, then invalidates the catalog cache and enqueues the order for
// fulfillment. Cache and queue failures after commit do not fail the call.
func (s *OrderService) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// The transaction must resolve even if the caller goes away.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	txCtx, span := s.tracer.Start(txCtx, "PlaceOrder")
	defer span.End()

	order := models.Order{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Status:        models.OrderStatusPending,
	}

	err := s.store.WithTx(txCtx, func(tx db.Tx) error {
		order.Items = order.Items[:0]
		order.Total = decimal.Zero

		if err := tx.CreateOrder(txCtx, &order); err != nil {
			return err
		}

		for _, it := range req.Items {
			item, err := reserve(txCtx, tx, order.ID, it)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, *item)
			order.Total = order.Total.Add(item.LineTotal())
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, classify(err)
	}

	span.SetAttributes(
		attribute.Int("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
		attribute.String("order.total", order.Total.StringFixed(2)),
	)
	s.logger.Info("✅ Order placed",
		zap.Int("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)

	// Keeps the span but not the transaction's partly spent deadline.
	sideCtx, sideCancel := context.WithTimeout(context.WithoutCancel(txCtx), s.sideTimeout)
	defer sideCancel()

	if err := s.catalog.Invalidate(sideCtx); err != nil {
		s.logger.Warn("⚠️ Failed to invalidate product cache",
			zap.Int("order_id", order.ID), zap.Error(fmt.Errorf("%w: %v", ErrCache, err)))
	}

	msg := models.OrderPlacedMessage{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		TotalPrice:   order.Total,
	}
	if err := s.publisher.PublishOrderPlaced(sideCtx, msg); err != nil {
		// The order stays pending; the reconciler republishes it later.
		s.logger.Warn("⚠️ Failed to publish order",
			zap.Int("order_id", order.ID), zap.Error(fmt.Errorf("%w: %v", ErrQueue, err)))
	}

	return &models.PlaceOrderResponse{OrderID: order.ID, Status: order.Status}, nil
}

func reserve(ctx context.Context, tx db.Tx, orderID int, it models.PlaceOrderItemRequest) (*models.OrderItem, error) {
	product, err := tx.LockProduct(ctx, it.ProductID)
	if errors.Is(err, db.ErrProductNotFound) {
		return nil, &NotFoundError{Resource: "product", ID: it.ProductID}
	}
	if err != nil {
		return nil, err
	}

	if product.Stock < it.Quantity {
		return nil, &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: product.Stock}
	}

	if err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
		if errors.Is(err, db.ErrInsufficientStock) {
			return nil, &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: product.Stock}
		}
		return nil, err
	}

	item := &models.OrderItem{
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    it.Quantity,
		UnitPrice:   product.Price,
	}
	if err := tx.AddItem(ctx, item); err != nil {
		return nil, err
	}
	item.TotalPrice = item.LineTotal()
	return item, nil
}

func classify(err error) error {
	var (
		notFound     *NotFoundError
		insufficient *InsufficientStockError
		validation   *ValidationError
	)
	if errors.As(err, &notFound) || errors.As(err, &insufficient) || errors.As(err, &validation) {
		return err
	}
	return &StoreError{Op: "place order", Err: err}
}

func validate(req models.PlaceOrderRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return &ValidationError{Field: "customer_name", Message: "is required"}
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		return &ValidationError{Field: "customer_email", Message: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "customer_email", Message: "is not a valid address"}
	}
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Message: "must contain at least one item"}
	}
	for i, it := range req.Items {
		if it.ProductID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Message: "must be positive"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be greater than zero"}
		}
	}
	return nil
}

// GetOrder returns an order with its items and snapshot-priced total.
func (s *OrderService) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, &StoreError{Op: "get order", Err: err}
	}
	return order, nil
}

// ListOrders returns the most recent orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	orders, err := s.orders.List(ctx, limit)
	if err != nil {
		return nil, &StoreError{Op: "list orders", Err: err}
	}
	return orders, nil
}
