package merchantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paygate/internal/merchant"
)

// OrderStore reads and marks orders in Postgres. The order catalog owns
// order creation; this store only resolves orders and records settlement
// outcomes.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the orders table if it does not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// FindOrder returns the order or merchant.ErrOrderMissing. Pure read.
func (s *OrderStore) FindOrder(ctx context.Context, orderID string) (merchant.Order, error) {
	if orderID == "" {
		return merchant.Order{}, merchant.ErrOrderMissing
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, amount, status
		FROM orders
		WHERE id = $1`,
		orderID,
	)

	var order merchant.Order
	var status string
	err := row.Scan(&order.ID, &order.UserID, &order.PlanID, &order.Amount, &status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return merchant.Order{}, merchant.ErrOrderMissing
	case err != nil:
		return merchant.Order{}, err
	}
	order.Status = merchant.OrderStatus(status)
	return order, nil
}

// MarkOrderStatus records the settlement outcome on the order.
func (s *OrderStore) MarkOrderStatus(ctx context.Context, orderID string, status merchant.OrderStatus) error {
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return merchant.ErrOrderMissing
	}
	return nil
}
