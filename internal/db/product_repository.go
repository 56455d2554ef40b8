package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(database *PostgresDB) *ProductRepository {
	return &ProductRepository{db: database.Conn}
}

// GetAll returns the catalog ordered by id
func (r *ProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	query := "SELECT id, name, description, price, stock FROM products ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// GetByID returns a single product or ErrProductNotFound
func (r *ProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	query := "SELECT id, name, description, price, stock FROM products WHERE id = $1"

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}
