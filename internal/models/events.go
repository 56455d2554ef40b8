package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderPlacedMessage is published to the order queue once per placed order.
type OrderPlacedMessage struct {
	OrderID      int             `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

var ErrMalformedMessage = errors.New("malformed order message")

func (m OrderPlacedMessage) Validate() error {
	if m.OrderID <= 0 {
		return fmt.Errorf("%w: order_id must be positive, got %d", ErrMalformedMessage, m.OrderID)
	}
	return nil
}
