package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

// transitions lists, for each target status, the statuses an order may move from.
// A status is always allowed to be set to itself.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusPending},
	OrderStatusCompleted:  {OrderStatusProcessing},
	OrderStatusFailed:     {OrderStatusPending, OrderStatusProcessing},
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether an order in status s may be moved to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, from := range transitions[next] {
		if from == s {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses next may be reached from, including next itself.
func AllowedFrom(next OrderStatus) []OrderStatus {
	return append([]OrderStatus{next}, transitions[next]...)
}

func (s OrderStatus) String() string {
	return string(s)
}

type Order struct {
	ID            int             `json:"order_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Status        OrderStatus     `json:"status"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID          int             `json:"-"`
	OrderID     int             `json:"-"`
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// LineTotal is the snapshot unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotals fills every item's TotalPrice and the order Total from the
// snapshot prices.
func (o *Order) ComputeTotals() {
	total := decimal.Zero
	for i := range o.Items {
		o.Items[i].TotalPrice = o.Items[i].LineTotal()
		total = total.Add(o.Items[i].TotalPrice)
	}
	o.Total = total
}

type PlaceOrderRequest struct {
	CustomerName  string                  `json:"customer_name"`
	CustomerEmail string                  `json:"customer_email"`
	Items         []PlaceOrderItemRequest `json:"items"`
}

type PlaceOrderItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type PlaceOrderResponse struct {
	OrderID int         `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

// OrderSummary is a row of the recent-orders listing.
type OrderSummary struct {
	ID           int             `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	Status       OrderStatus     `json:"status"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
}
