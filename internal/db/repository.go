package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrUnknownStatus     = errors.New("unknown order status")
)

// TransitionError is returned when an order cannot move from its current
// status to the requested one.
type TransitionError struct {
	OrderID int
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Tx is the unit of work used by order placement. Everything done through a
// Tx is committed or rolled back together.
type Tx interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	// LockProduct reads a product and holds it against concurrent stock
	// changes until the transaction ends.
	LockProduct(ctx context.Context, id int) (*models.Product, error)
	DecrementStock(ctx context.Context, productID, quantity int) error
	AddItem(ctx context.Context, item *models.OrderItem) error
}

type OrderStore interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type OrderReader interface {
	GetByID(ctx context.Context, id int) (*models.Order, error)
	List(ctx context.Context, limit int) ([]models.OrderSummary, error)
}

// StatusUpdater changes order status. Setting the current status again is a
// no-op reported as changed == false.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id int, status models.OrderStatus) (changed bool, err error)
}

type StaleOrderFinder interface {
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.OrderPlacedMessage, error)
}

type ProductReader interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id int) (*models.Product, error)
}
