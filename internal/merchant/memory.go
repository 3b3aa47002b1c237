package merchant

import (
	"context"
	"sort"
	"sync"
)

// MemoryTransactionStore is an in-process TransactionStore. Used in
// tests and as the fallback when no database is configured.
type MemoryTransactionStore struct {
	mu   sync.Mutex
	txns map[string]Transaction
}

// NewMemoryTransactionStore constructs an empty in-memory store.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{txns: make(map[string]Transaction)}
}

// GetByID returns the transaction or ErrTransactionMissing.
func (s *MemoryTransactionStore) GetByID(ctx context.Context, id string) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[id]
	if !ok {
		return Transaction{}, ErrTransactionMissing
	}
	return txn, nil
}

// GetActiveByOrder returns the non-cancelled transaction holding the order.
func (s *MemoryTransactionStore) GetActiveByOrder(ctx context.Context, orderID string) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range s.txns {
		if txn.OrderID == orderID && txn.Active() {
			return txn, nil
		}
	}
	return Transaction{}, ErrTransactionMissing
}

// InsertIfAbsent creates the transaction unless the id exists or the
// order is held by a different active transaction.
func (s *MemoryTransactionStore) InsertIfAbsent(ctx context.Context, txn Transaction) (Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.txns[txn.ID]; ok {
		return existing, false, nil
	}
	for _, other := range s.txns {
		if other.OrderID == txn.OrderID && other.Active() {
			return Transaction{}, false, ErrOrderClaimed
		}
	}
	s.txns[txn.ID] = txn
	return txn, true, nil
}

// CompareAndSetState applies the update while the stored state matches.
func (s *MemoryTransactionStore) CompareAndSetState(ctx context.Context, id string, expected int, update StateUpdate) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.txns[id]
	if !ok {
		return Transaction{}, ErrTransactionMissing
	}
	if txn.State != expected {
		return Transaction{}, ErrStateConflict
	}

	txn.State = update.State
	if update.PerformTime > 0 && txn.PerformTime == 0 {
		txn.PerformTime = update.PerformTime
	}
	if update.CancelTime > 0 && txn.CancelTime == 0 {
		txn.CancelTime = update.CancelTime
	}
	if update.Reason != nil {
		reason := *update.Reason
		txn.Reason = &reason
	}
	s.txns[id] = txn
	return txn, nil
}

// ListByTimeRange returns transactions created within [from, to],
// ordered by create_time ascending.
func (s *MemoryTransactionStore) ListByTimeRange(ctx context.Context, from, to int64) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Transaction
	for _, txn := range s.txns {
		if txn.CreateTime >= from && txn.CreateTime <= to {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime < out[j].CreateTime })
	return out, nil
}

// MemoryOrderStore is an in-process OrderStore for tests and DB-less runs.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

// NewMemoryOrderStore constructs an empty in-memory order store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]Order)}
}

// AddOrder seeds an order record.
func (s *MemoryOrderStore) AddOrder(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.Status == "" {
		order.Status = OrderPending
	}
	s.orders[order.ID] = order
}

// FindOrder returns the order or ErrOrderMissing.
func (s *MemoryOrderStore) FindOrder(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrOrderMissing
	}
	return order, nil
}

// MarkOrderStatus records the settlement outcome on the order.
func (s *MemoryOrderStore) MarkOrderStatus(ctx context.Context, orderID string, status OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderMissing
	}
	order.Status = status
	s.orders[orderID] = order
	return nil
}
