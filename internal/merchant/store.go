package merchant

import (
	"context"
	"errors"
)

// Store sentinels. These are internal signals; the service layer maps
// them to protocol errors.
var (
	// ErrTransactionMissing signals no transaction exists for the id.
	ErrTransactionMissing = errors.New("transaction not found")

	// ErrOrderMissing signals no order exists for the id.
	ErrOrderMissing = errors.New("order not found")

	// ErrOrderClaimed signals another non-cancelled transaction already
	// holds the order.
	ErrOrderClaimed = errors.New("order already claimed by another transaction")

	// ErrStateConflict signals a lost compare-and-set race: the stored
	// state no longer matches the expected one. Callers re-read and take
	// the replay branch.
	ErrStateConflict = errors.New("transaction state conflict")
)

// StateUpdate describes a single state transition. Zero time fields are
// left untouched by the store; PerformTime and CancelTime are write-once.
type StateUpdate struct {
	State       int
	PerformTime int64
	CancelTime  int64
	Reason      *int
}

// TransactionStore persists protocol transactions. Implementations must
// make InsertIfAbsent and CompareAndSetState atomic: two concurrent
// writers may both call them, but exactly one observes success.
type TransactionStore interface {
	// GetByID returns the transaction or ErrTransactionMissing.
	GetByID(ctx context.Context, id string) (Transaction, error)

	// GetActiveByOrder returns the non-cancelled transaction holding the
	// order, or ErrTransactionMissing when the order is free.
	GetActiveByOrder(ctx context.Context, orderID string) (Transaction, error)

	// InsertIfAbsent creates the transaction unless its id already exists
	// or another active transaction holds the order. It returns the
	// stored record and whether this call created it; ErrOrderClaimed
	// when the order is held by a different transaction.
	InsertIfAbsent(ctx context.Context, txn Transaction) (Transaction, bool, error)

	// CompareAndSetState applies the update only while the stored state
	// equals expected, returning the post-transition record. A mismatch
	// yields ErrStateConflict.
	CompareAndSetState(ctx context.Context, id string, expected int, update StateUpdate) (Transaction, error)

	// ListByTimeRange returns transactions with create_time in [from, to],
	// ordered by create_time ascending.
	ListByTimeRange(ctx context.Context, from, to int64) ([]Transaction, error)
}

// OrderStore is the order catalog surface the payment core consumes.
type OrderStore interface {
	// FindOrder returns the order or ErrOrderMissing. Pure read.
	FindOrder(ctx context.Context, orderID string) (Order, error)

	// MarkOrderStatus records the settlement outcome on the order.
	MarkOrderStatus(ctx context.Context, orderID string, status OrderStatus) error
}
