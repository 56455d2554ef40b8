package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process store with the same contracts as the
// Postgres repositories. Transactions are serialized and applied to a copy
// that replaces the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	products    map[int]models.Product
	orders      map[int]models.Order
	items       map[int][]models.OrderItem
	nextProduct int
	nextOrder   int
	nextItem    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			products:    make(map[int]models.Product),
			orders:      make(map[int]models.Order),
			items:       make(map[int][]models.OrderItem),
			nextProduct: 1,
			nextOrder:   1,
			nextItem:    1,
		},
		now: time.Now,
	}
}

func (s memoryState) clone() memoryState {
	c := s
	c.products = make(map[int]models.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.orders = make(map[int]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = make(map[int][]models.OrderItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	return c
}

// AddProduct stocks a product and returns it with its assigned id.
func (s *MemoryStore) AddProduct(name, description string, price decimal.Decimal, stock int) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.Product{
		ID:          s.state.nextProduct,
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       stock,
	}
	s.state.products[p.ID] = p
	s.state.nextProduct++
	return p
}

// SetCreatedAt backdates an order.
func (s *MemoryStore) SetCreatedAt(orderID int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.state.orders[orderID]; ok {
		o.CreatedAt = at
		s.state.orders[orderID] = o
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

type memoryTx struct {
	state memoryState
	now   func() time.Time
}

func (t *memoryTx) CreateOrder(_ context.Context, order *models.Order) error {
	order.ID = t.state.nextOrder
	order.CreatedAt = t.now()
	order.UpdatedAt = order.CreatedAt
	t.state.nextOrder++

	stored := *order
	stored.Items = nil
	t.state.orders[order.ID] = stored
	return nil
}

func (t *memoryTx) LockProduct(_ context.Context, id int) (*models.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (t *memoryTx) DecrementStock(_ context.Context, productID, quantity int) error {
	p, ok := t.state.products[productID]
	if !ok || p.Stock < quantity {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	t.state.products[productID] = p
	return nil
}

func (t *memoryTx) AddItem(_ context.Context, item *models.OrderItem) error {
	if _, ok := t.state.orders[item.OrderID]; !ok {
		return ErrOrderNotFound
	}
	item.ID = t.state.nextItem
	t.state.nextItem++
	t.state.items[item.OrderID] = append(t.state.items[item.OrderID], *item)
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]models.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// Orders exposes the order side of the store, whose GetByID reads orders
// rather than products.
func (s *MemoryStore) Orders() *MemoryOrders {
	return &MemoryOrders{s: s}
}

type MemoryOrders struct {
	s *MemoryStore
}

func (o *MemoryOrders) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return o.s.WithTx(ctx, fn)
}

func (o *MemoryOrders) GetByID(_ context.Context, id int) (*models.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.state.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	for _, item := range o.s.state.items[id] {
		item.ProductName = o.s.state.products[item.ProductID].Name
		order.Items = append(order.Items, item)
	}
	order.ComputeTotals()
	return &order, nil
}

func (o *MemoryOrders) List(_ context.Context, limit int) ([]models.OrderSummary, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	ids := make([]int, 0, len(o.s.state.orders))
	for id := range o.s.state.orders {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	summaries := make([]models.OrderSummary, 0, len(ids))
	for _, id := range ids {
		order := o.s.state.orders[id]
		summaries = append(summaries, models.OrderSummary{
			ID:           order.ID,
			CustomerName: order.CustomerName,
			Status:       order.Status,
			Total:        o.s.total(id),
			CreatedAt:    order.CreatedAt,
		})
	}
	return summaries, nil
}

func (o *MemoryOrders) UpdateStatus(_ context.Context, id int, status models.OrderStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.state.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status == status {
		return false, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return false, &TransitionError{OrderID: id, From: order.Status, To: status}
	}
	order.Status = status
	order.UpdatedAt = o.s.now()
	o.s.state.orders[id] = order
	return true, nil
}

func (o *MemoryOrders) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.OrderPlacedMessage, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	var stale []models.Order
	for _, order := range o.s.state.orders {
		if order.Status == models.OrderStatusPending && order.CreatedAt.Before(createdBefore) {
			stale = append(stale, order)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	messages := make([]models.OrderPlacedMessage, 0, len(stale))
	for _, order := range stale {
		messages = append(messages, models.OrderPlacedMessage{
			OrderID:      order.ID,
			CustomerName: order.CustomerName,
			TotalPrice:   o.s.total(order.ID),
		})
	}
	return messages, nil
}

// total must be called with s.mu held.
func (s *MemoryStore) total(orderID int) decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.state.items[orderID] {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
