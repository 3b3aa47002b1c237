package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paygate/internal/merchant"
)

// Event types carried on the wire.
const (
	TypeCreated   = "transaction.created"
	TypePerformed = "transaction.performed"
	TypeCancelled = "transaction.cancelled"
)

// TransactionEvent is the payload published when a payment transaction
// changes state. Downstream services key on Type and OrderID.
type TransactionEvent struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	Transaction string `json:"transaction"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	State       int    `json:"state"`
	Timestamp   int64  `json:"timestamp"`
}

// Publisher delivers one event to a destination.
type Publisher interface {
	Publish(ctx context.Context, event TransactionEvent) error
}

// Sink fans transaction changes out to every configured publisher.
// Delivery is best-effort: failures are logged and never surface to the
// payment flow.
type Sink struct {
	publishers []Publisher
	logger     *zap.Logger
	now        func() int64
}

// NewSink constructs a fan-out sink over the given publishers.
func NewSink(logger *zap.Logger, publishers ...Publisher) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		publishers: publishers,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// TransactionChanged implements merchant.EventSink.
func (s *Sink) TransactionChanged(ctx context.Context, txn merchant.Transaction) {
	event := TransactionEvent{
		EventID:     uuid.NewString(),
		Type:        eventType(txn.State),
		Transaction: txn.ID,
		OrderID:     txn.OrderID,
		Amount:      txn.Amount,
		State:       txn.State,
		Timestamp:   s.now(),
	}
	for _, pub := range s.publishers {
		if err := pub.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed",
				zap.String("event_id", event.EventID),
				zap.String("type", event.Type),
				zap.String("transaction", event.Transaction),
				zap.Error(err),
			)
		}
	}
}

func eventType(state int) string {
	switch state {
	case merchant.StatePerformed:
		return TypePerformed
	case merchant.StateCancelled, merchant.StateCancelledAfterPaid:
		return TypeCancelled
	default:
		return TypeCreated
	}
}
