package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broadcaster pushes a message to every connected realtime client.
type Broadcaster interface {
	Broadcast(message []byte)
}

// BroadcastPublisher mirrors transaction events onto the websocket hub.
type BroadcastPublisher struct {
	hub Broadcaster
}

// NewBroadcastPublisher constructs a publisher targeting the hub.
func NewBroadcastPublisher(hub Broadcaster) *BroadcastPublisher {
	return &BroadcastPublisher{hub: hub}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, event TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.hub.Broadcast(payload)
	return nil
}
