package merchant

// Transaction states as assigned by the processor protocol.
const (
	StatePending            = 1
	StatePerformed          = 2
	StateCancelled          = -1
	StateCancelledAfterPaid = -2
)

// OrderStatus is the local order lifecycle status.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Order is a locally owned record representing a pending charge.
// Orders are created by the order catalog before any payment call; the
// payment core only flips their status once a transaction settles.
type Order struct {
	ID     string
	UserID string
	PlanID string
	Amount int64
	Status OrderStatus
}

// Transaction is the processor's view of a single settlement attempt
// against an Order. The ID is supplied by the processor and is globally
// unique. All *Time fields are epoch milliseconds; PerformTime and
// CancelTime are zero until the corresponding transition happens and are
// write-once after that.
type Transaction struct {
	ID          string
	OrderID     string
	Amount      int64
	State       int
	CreateTime  int64
	PerformTime int64
	CancelTime  int64
	Reason      *int
}

// Cancelled reports whether the transaction is in a terminal cancelled state.
func (t Transaction) Cancelled() bool {
	return t.State == StateCancelled || t.State == StateCancelledAfterPaid
}

// Active reports whether the transaction still blocks new transactions
// on its order.
func (t Transaction) Active() bool {
	return t.State == StatePending || t.State == StatePerformed
}

// Account identifies the order a processor call refers to.
type Account struct {
	OrderID string `json:"orderId"`
}
