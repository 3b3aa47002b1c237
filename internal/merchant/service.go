package merchant

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Clock supplies protocol timestamps in epoch milliseconds.
type Clock func() int64

// EventSink receives transactions that completed a state transition.
// Delivery is best-effort and must never affect the webhook response.
type EventSink interface {
	TransactionChanged(ctx context.Context, txn Transaction)
}

// ServiceConfig wires a Service. Orders and Transactions are required;
// the rest default to no-ops or sane values.
type ServiceConfig struct {
	Orders       OrderStore
	Transactions TransactionStore
	Events       EventSink
	Logger       *zap.Logger
	Now          Clock
	Retry        RetryPolicy
}

// Service implements the merchant side of the processor RPC protocol.
// Each method is a handler for the equally named RPC method; all
// cross-request coordination happens through the TransactionStore.
type Service struct {
	orders OrderStore
	txns   TransactionStore
	events EventSink
	logger *zap.Logger
	now    Clock
	retry  RetryPolicy
}

// NewService constructs a Service from the config.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	}
	return &Service{
		orders: cfg.Orders,
		txns:   cfg.Transactions,
		events: cfg.Events,
		logger: logger,
		now:    now,
		retry:  retry,
	}
}

// CheckPerformResult answers CheckPerformTransaction.
type CheckPerformResult struct {
	Allow bool `json:"allow"`
}

// CreateResult answers CreateTransaction.
type CreateResult struct {
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	CreateTime  int64  `json:"create_time"`
}

// PerformResult answers PerformTransaction.
type PerformResult struct {
	Transaction string `json:"transaction"`
	PerformTime int64  `json:"perform_time"`
	State       int    `json:"state"`
}

// CancelResult answers CancelTransaction.
type CancelResult struct {
	Transaction string `json:"transaction"`
	CancelTime  int64  `json:"cancel_time"`
	State       int    `json:"state"`
}

// CheckResult answers CheckTransaction. Values are exactly what the
// last transition wrote; nothing is recomputed.
type CheckResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

// StatementEntry is one transaction in a GetStatement response.
type StatementEntry struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	Amount      int64   `json:"amount"`
	Account     Account `json:"account"`
	CreateTime  int64   `json:"create_time"`
	PerformTime int64   `json:"perform_time"`
	CancelTime  int64   `json:"cancel_time"`
	Transaction string  `json:"transaction"`
	State       int     `json:"state"`
	Reason      *int    `json:"reason"`
}

// StatementResult answers GetStatement.
type StatementResult struct {
	Transactions []StatementEntry `json:"transactions"`
}

// CheckPerformTransaction validates that a new transaction may be opened
// against the order. Validation order is protocol-mandated: account
// first, then amount, then conflicting-transaction state. Side-effect free.
func (s *Service) CheckPerformTransaction(ctx context.Context, account Account, amount int64) (CheckPerformResult, error) {
	order, err := s.resolveOrder(ctx, account, amount)
	if err != nil {
		return CheckPerformResult{}, err
	}
	if err := s.ensureOrderFree(ctx, order.ID, ""); err != nil {
		return CheckPerformResult{}, err
	}
	return CheckPerformResult{Allow: true}, nil
}

// CreateTransaction opens a transaction against the order, or replays the
// original result when the id is already known.
func (s *Service) CreateTransaction(ctx context.Context, id string, account Account, amount int64, createTime int64) (CreateResult, error) {
	if id == "" {
		return CreateResult{}, ErrOperationNotAllowed
	}

	existing, err := s.getTransaction(ctx, id)
	switch {
	case err == nil:
		if existing.OrderID != account.OrderID || existing.Amount != amount {
			return CreateResult{}, ErrOperationNotAllowed
		}
		return CreateResult{Transaction: existing.ID, State: existing.State, CreateTime: existing.CreateTime}, nil
	case !errors.Is(err, ErrTransactionNotFound):
		return CreateResult{}, err
	}

	order, err := s.resolveOrder(ctx, account, amount)
	if err != nil {
		return CreateResult{}, err
	}
	if err := s.ensureOrderFree(ctx, order.ID, id); err != nil {
		return CreateResult{}, err
	}

	txn := Transaction{
		ID:         id,
		OrderID:    order.ID,
		Amount:     amount,
		State:      StatePending,
		CreateTime: createTime,
	}

	var stored Transaction
	var created bool
	err = s.retry.Do(ctx, func() error {
		var ierr error
		stored, created, ierr = s.txns.InsertIfAbsent(ctx, txn)
		return ierr
	})
	if err != nil {
		if errors.Is(err, ErrOrderClaimed) {
			return CreateResult{}, ErrOperationNotAllowed
		}
		s.logger.Error("insert transaction", zap.String("transaction", id), zap.Error(err))
		return CreateResult{}, ErrInternal
	}

	if created {
		s.emit(ctx, stored)
	} else if stored.OrderID != account.OrderID || stored.Amount != amount {
		return CreateResult{}, ErrOperationNotAllowed
	}

	return CreateResult{Transaction: stored.ID, State: stored.State, CreateTime: stored.CreateTime}, nil
}

// PerformTransaction confirms capture. Exactly one caller wins the 1→2
// transition; everyone else replays the stored perform_time.
func (s *Service) PerformTransaction(ctx context.Context, id string) (PerformResult, error) {
	txn, err := s.getTransaction(ctx, id)
	if err != nil {
		return PerformResult{}, err
	}

	for {
		switch {
		case txn.State == StatePerformed:
			// Replay: re-assert the order status, return the original timestamp.
			if err := s.markOrder(ctx, txn.OrderID, OrderPaid); err != nil {
				return PerformResult{}, err
			}
			return PerformResult{Transaction: txn.ID, PerformTime: txn.PerformTime, State: txn.State}, nil
		case txn.Cancelled():
			return PerformResult{}, ErrOperationNotAllowed
		}

		updated, err := s.casState(ctx, id, StatePending, StateUpdate{
			State:       StatePerformed,
			PerformTime: s.now(),
		})
		if errors.Is(err, ErrStateConflict) {
			// Lost the race; the re-read state decides replay vs. not allowed.
			if txn, err = s.getTransaction(ctx, id); err != nil {
				return PerformResult{}, err
			}
			continue
		}
		if err != nil {
			return PerformResult{}, err
		}

		if err := s.markOrder(ctx, updated.OrderID, OrderPaid); err != nil {
			return PerformResult{}, err
		}
		s.emit(ctx, updated)
		return PerformResult{Transaction: updated.ID, PerformTime: updated.PerformTime, State: updated.State}, nil
	}
}

// CancelTransaction reverses the transaction, before or after capture.
// Cancelling a performed transaction keeps its perform_time intact.
func (s *Service) CancelTransaction(ctx context.Context, id string, reason int) (CancelResult, error) {
	txn, err := s.getTransaction(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}

	for {
		if txn.Cancelled() {
			if err := s.markOrder(ctx, txn.OrderID, cancelOutcome(txn.State)); err != nil {
				return CancelResult{}, err
			}
			return CancelResult{Transaction: txn.ID, CancelTime: txn.CancelTime, State: txn.State}, nil
		}

		target := StateCancelled
		if txn.State == StatePerformed {
			target = StateCancelledAfterPaid
		}
		updated, err := s.casState(ctx, id, txn.State, StateUpdate{
			State:      target,
			CancelTime: s.now(),
			Reason:     &reason,
		})
		if errors.Is(err, ErrStateConflict) {
			if txn, err = s.getTransaction(ctx, id); err != nil {
				return CancelResult{}, err
			}
			continue
		}
		if err != nil {
			return CancelResult{}, err
		}

		if err := s.markOrder(ctx, updated.OrderID, cancelOutcome(updated.State)); err != nil {
			return CancelResult{}, err
		}
		s.emit(ctx, updated)
		return CancelResult{Transaction: updated.ID, CancelTime: updated.CancelTime, State: updated.State}, nil
	}
}

// CheckTransaction reports the stored transaction verbatim. This is the
// reconciliation source of truth.
func (s *Service) CheckTransaction(ctx context.Context, id string) (CheckResult, error) {
	txn, err := s.getTransaction(ctx, id)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{
		CreateTime:  txn.CreateTime,
		PerformTime: txn.PerformTime,
		CancelTime:  txn.CancelTime,
		Transaction: txn.ID,
		State:       txn.State,
		Reason:      txn.Reason,
	}, nil
}

// GetStatement lists transactions created within [from, to], ascending
// by create_time.
func (s *Service) GetStatement(ctx context.Context, from, to int64) (StatementResult, error) {
	var txns []Transaction
	err := s.retry.Do(ctx, func() error {
		var lerr error
		txns, lerr = s.txns.ListByTimeRange(ctx, from, to)
		return lerr
	})
	if err != nil {
		s.logger.Error("list transactions", zap.Int64("from", from), zap.Int64("to", to), zap.Error(err))
		return StatementResult{}, ErrInternal
	}

	entries := make([]StatementEntry, 0, len(txns))
	for _, txn := range txns {
		entries = append(entries, StatementEntry{
			ID:          txn.ID,
			Time:        txn.CreateTime,
			Amount:      txn.Amount,
			Account:     Account{OrderID: txn.OrderID},
			CreateTime:  txn.CreateTime,
			PerformTime: txn.PerformTime,
			CancelTime:  txn.CancelTime,
			Transaction: txn.ID,
			State:       txn.State,
			Reason:      txn.Reason,
		})
	}
	return StatementResult{Transactions: entries}, nil
}

// resolveOrder validates account then amount, in that order.
func (s *Service) resolveOrder(ctx context.Context, account Account, amount int64) (Order, error) {
	if account.OrderID == "" {
		return Order{}, ErrOrderNotFound
	}

	var order Order
	err := s.retry.Do(ctx, func() error {
		var ferr error
		order, ferr = s.orders.FindOrder(ctx, account.OrderID)
		return ferr
	})
	if err != nil {
		if errors.Is(err, ErrOrderMissing) {
			return Order{}, ErrOrderNotFound
		}
		s.logger.Error("find order", zap.String("order_id", account.OrderID), zap.Error(err))
		return Order{}, ErrInternal
	}

	if amount != order.Amount {
		return Order{}, ErrInvalidAmount
	}
	return order, nil
}

// ensureOrderFree rejects when a different non-cancelled transaction
// already holds the order. This read is advisory; InsertIfAbsent is the
// authoritative atomic claim.
func (s *Service) ensureOrderFree(ctx context.Context, orderID, exceptTxn string) error {
	var active Transaction
	err := s.retry.Do(ctx, func() error {
		var gerr error
		active, gerr = s.txns.GetActiveByOrder(ctx, orderID)
		return gerr
	})
	if err != nil {
		if errors.Is(err, ErrTransactionMissing) {
			return nil
		}
		s.logger.Error("lookup active transaction", zap.String("order_id", orderID), zap.Error(err))
		return ErrInternal
	}
	if exceptTxn != "" && active.ID == exceptTxn {
		return nil
	}
	return ErrOperationNotAllowed
}

func (s *Service) getTransaction(ctx context.Context, id string) (Transaction, error) {
	var txn Transaction
	err := s.retry.Do(ctx, func() error {
		var gerr error
		txn, gerr = s.txns.GetByID(ctx, id)
		return gerr
	})
	if err != nil {
		if errors.Is(err, ErrTransactionMissing) {
			return Transaction{}, ErrTransactionNotFound
		}
		s.logger.Error("get transaction", zap.String("transaction", id), zap.Error(err))
		return Transaction{}, ErrInternal
	}
	return txn, nil
}

func (s *Service) casState(ctx context.Context, id string, expected int, update StateUpdate) (Transaction, error) {
	var txn Transaction
	err := s.retry.Do(ctx, func() error {
		var cerr error
		txn, cerr = s.txns.CompareAndSetState(ctx, id, expected, update)
		return cerr
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrStateConflict):
			return Transaction{}, ErrStateConflict
		case errors.Is(err, ErrTransactionMissing):
			return Transaction{}, ErrTransactionNotFound
		}
		s.logger.Error("transition transaction", zap.String("transaction", id), zap.Int("expected_state", expected), zap.Error(err))
		return Transaction{}, ErrInternal
	}
	return txn, nil
}

func (s *Service) markOrder(ctx context.Context, orderID string, status OrderStatus) error {
	err := s.retry.Do(ctx, func() error {
		return s.orders.MarkOrderStatus(ctx, orderID, status)
	})
	if err != nil {
		s.logger.Error("mark order status", zap.String("order_id", orderID), zap.String("status", string(status)), zap.Error(err))
		return ErrInternal
	}
	return nil
}

func (s *Service) emit(ctx context.Context, txn Transaction) {
	if s.events == nil {
		return
	}
	s.events.TransactionChanged(ctx, txn)
}

func cancelOutcome(state int) OrderStatus {
	if state == StateCancelledAfterPaid {
		return OrderRefunded
	}
	return OrderCancelled
}
