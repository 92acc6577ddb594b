// Package event publishes order lifecycle events for downstream consumers
// (notification senders, analytics). Publishing is best-effort: the order
// flows never fail because the broker is unavailable.
package event

import (
	"context"
	"time"
)

// Event types emitted by the checkout engine.
const (
	TypeOrderCreated   = "order.created"
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
)

// Event describes a single order lifecycle transition.
type Event struct {
	Type        string    `json:"type"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Total       string    `json:"total"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop is a Publisher that discards every event. Used when no brokers are
// configured and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
