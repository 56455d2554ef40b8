package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// money renders an amount as a two-place JSON number, e.g. 6.00.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		Price json.Number `json:"price"`
	}{product(p), money(p.Price)})
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type item OrderItem
	return json.Marshal(struct {
		item
		UnitPrice  json.Number `json:"unit_price"`
		TotalPrice json.Number `json:"total_price"`
	}{item(i), money(i.UnitPrice), money(i.TotalPrice)})
}

func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Total json.Number `json:"total"`
	}{order(o), money(o.Total)})
}

func (s OrderSummary) MarshalJSON() ([]byte, error) {
	type summary OrderSummary
	return json.Marshal(struct {
		summary
		Total json.Number `json:"total"`
	}{summary(s), money(s.Total)})
}
