package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopstack/orderdesk/internal/domain"
)

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	customer := &domain.Customer{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), role
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Email, &customer.Phone, &customer.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}

	return customer, nil
}
