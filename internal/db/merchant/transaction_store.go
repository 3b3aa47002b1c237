package merchantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paygate/internal/merchant"
)

// TransactionStore persists protocol transactions in Postgres.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore constructs a TransactionStore backed by Postgres.
func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// NewTransactionStoreWithSchema initializes the schema then returns the store.
func NewTransactionStoreWithSchema(ctx context.Context, db *sql.DB) (*TransactionStore, error) {
	store := NewTransactionStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the transactions table if it does not exist.
func (s *TransactionStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS merchant_transactions (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			state INTEGER NOT NULL,
			create_time BIGINT NOT NULL,
			perform_time BIGINT NOT NULL DEFAULT 0,
			cancel_time BIGINT NOT NULL DEFAULT 0,
			reason INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS merchant_transactions_order_idx ON merchant_transactions (order_id)`,
		`CREATE INDEX IF NOT EXISTS merchant_transactions_create_time_idx ON merchant_transactions (create_time)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, order_id, amount, state, create_time, perform_time, cancel_time, reason`

// GetByID returns the transaction or merchant.ErrTransactionMissing.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (merchant.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM merchant_transactions
		WHERE id = $1`,
		id,
	)
	return scanTransaction(row)
}

// GetActiveByOrder returns the non-cancelled transaction holding the
// order, or merchant.ErrTransactionMissing when the order is free.
func (s *TransactionStore) GetActiveByOrder(ctx context.Context, orderID string) (merchant.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM merchant_transactions
		WHERE order_id = $1 AND state IN ($2, $3)`,
		orderID, merchant.StatePending, merchant.StatePerformed,
	)
	return scanTransaction(row)
}

// InsertIfAbsent creates the transaction in a single conditional write:
// the insert happens only while no other active transaction holds the
// order, and a duplicate id is a no-op. The stored record is re-read so
// callers never act on a stale view.
func (s *TransactionStore) InsertIfAbsent(ctx context.Context, txn merchant.Transaction) (merchant.Transaction, bool, error) {
	if txn.ID == "" || txn.OrderID == "" {
		return merchant.Transaction{}, false, fmt.Errorf("transaction and order ids are required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_transactions (id, order_id, amount, state, create_time)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM merchant_transactions
			WHERE order_id = $2 AND state IN ($6, $7) AND id <> $1
		)
		ON CONFLICT (id) DO NOTHING`,
		txn.ID, txn.OrderID, txn.Amount, txn.State, txn.CreateTime,
		merchant.StatePending, merchant.StatePerformed,
	)
	if err != nil {
		return merchant.Transaction{}, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return merchant.Transaction{}, false, err
	}

	stored, err := s.GetByID(ctx, txn.ID)
	if errors.Is(err, merchant.ErrTransactionMissing) {
		// Nothing inserted and no row for the id: another transaction holds the order.
		return merchant.Transaction{}, false, merchant.ErrOrderClaimed
	}
	if err != nil {
		return merchant.Transaction{}, false, err
	}
	return stored, affected == 1, nil
}

// CompareAndSetState applies the update only while the stored state
// matches the expected one. perform_time and cancel_time are write-once:
// a zero update value leaves them untouched, a non-zero value only lands
// when the column is still zero.
func (s *TransactionStore) CompareAndSetState(ctx context.Context, id string, expected int, update merchant.StateUpdate) (merchant.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE merchant_transactions
		SET state = $3,
			perform_time = CASE WHEN $4 > 0 AND perform_time = 0 THEN $4 ELSE perform_time END,
			cancel_time = CASE WHEN $5 > 0 AND cancel_time = 0 THEN $5 ELSE cancel_time END,
			reason = COALESCE($6, reason),
			updated_at = NOW()
		WHERE id = $1 AND state = $2`,
		id, expected, update.State, update.PerformTime, update.CancelTime, update.Reason,
	)
	if err != nil {
		return merchant.Transaction{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return merchant.Transaction{}, err
	}

	stored, err := s.GetByID(ctx, id)
	if err != nil {
		return merchant.Transaction{}, err
	}
	if affected == 0 {
		return merchant.Transaction{}, merchant.ErrStateConflict
	}
	return stored, nil
}

// ListByTimeRange returns transactions created within [from, to],
// ordered by create_time ascending.
func (s *TransactionStore) ListByTimeRange(ctx context.Context, from, to int64) ([]merchant.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM merchant_transactions
		WHERE create_time >= $1 AND create_time <= $2
		ORDER BY create_time ASC`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []merchant.Transaction
	for rows.Next() {
		var txn merchant.Transaction
		var reason sql.NullInt32
		if err := rows.Scan(&txn.ID, &txn.OrderID, &txn.Amount, &txn.State,
			&txn.CreateTime, &txn.PerformTime, &txn.CancelTime, &reason); err != nil {
			return nil, err
		}
		if reason.Valid {
			r := int(reason.Int32)
			txn.Reason = &r
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanTransaction(row *sql.Row) (merchant.Transaction, error) {
	var txn merchant.Transaction
	var reason sql.NullInt32
	err := row.Scan(&txn.ID, &txn.OrderID, &txn.Amount, &txn.State,
		&txn.CreateTime, &txn.PerformTime, &txn.CancelTime, &reason)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return merchant.Transaction{}, merchant.ErrTransactionMissing
	case err != nil:
		return merchant.Transaction{}, err
	}
	if reason.Valid {
		r := int(reason.Int32)
		txn.Reason = &r
	}
	return txn, nil
}
