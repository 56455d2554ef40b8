package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

// Postgres error code for a violated CHECK constraint.
const checkViolation = "23514"

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(database *PostgresDB) *OrderRepository {
	return &OrderRepository{db: database.Conn}
}

// WithTx runs fn inside a single database transaction. The transaction is
// committed only when fn returns nil.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_name, customer_email, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRowContext(ctx, query, order.CustomerName, order.CustomerEmail, order.Status).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *pgTx) LockProduct(ctx context.Context, id int) (*models.Product, error) {
	query := "SELECT id, name, description, price, stock FROM products WHERE id = $1 FOR UPDATE"

	var p models.Product
	err := t.tx.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	return &p, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID, quantity int) error {
	query := "UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1"

	result, err := t.tx.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == checkViolation {
			return ErrInsufficientStock
		}
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (t *pgTx) AddItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice).
		Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

// GetByID returns an order with its items joined to the current product names
func (r *OrderRepository) GetByID(ctx context.Context, id int) (*models.Order, error) {
	orderQuery := `
		SELECT id, customer_name, customer_email, status, created_at, updated_at
		FROM orders WHERE id = $1
	`

	var order models.Order
	err := r.db.QueryRowContext(ctx, orderQuery, id).Scan(
		&order.ID, &order.CustomerName, &order.CustomerEmail, &order.Status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	itemsQuery := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`

	rows, err := r.db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	order.ComputeTotals()
	return &order, nil
}

// List returns the most recent orders with their totals
func (r *OrderRepository) List(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	query := `
		SELECT o.id, o.customer_name, o.status, o.created_at,
		       COALESCE(SUM(oi.unit_price * oi.quantity), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		GROUP BY o.id
		ORDER BY o.id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.OrderSummary{}
	for rows.Next() {
		var o models.OrderSummary
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.Status, &o.CreatedAt, &o.Total); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus moves an order to status if the transition is allowed.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int, status models.OrderStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	from := models.AllowedFrom(status)[1:]
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, status, id, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var current models.OrderStatus
	err = r.db.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = $1", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrOrderNotFound
		}
		return false, fmt.Errorf("failed to read order status: %w", err)
	}
	if current == status {
		return false, nil
	}
	return false, &TransitionError{OrderID: id, From: current, To: status}
}

// ListStalePending returns messages for orders still pending that were created
// before createdBefore, oldest first.
func (r *OrderRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.OrderPlacedMessage, error) {
	query := `
		SELECT o.id, o.customer_name, COALESCE(SUM(oi.unit_price * oi.quantity), 0)
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = $1 AND o.created_at < $2
		GROUP BY o.id
		ORDER BY o.created_at
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.OrderStatusPending, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer rows.Close()

	var messages []models.OrderPlacedMessage
	for rows.Next() {
		var m models.OrderPlacedMessage
		if err := rows.Scan(&m.OrderID, &m.CustomerName, &m.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan stale order: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale orders: %w", err)
	}

	return messages, nil
}
