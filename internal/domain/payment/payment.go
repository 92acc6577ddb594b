// Package payment owns payment records, gateway session creation, and
// webhook-driven reconciliation of payment outcomes into order state.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the internal payment state. Provider statuses are mapped onto
// this enum by the gateway's MapStatus.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether no further provider events can change this status.
// Refund is the one exception: a successful payment may still be refunded.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when no payment exists for an order.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyExists is returned by Create when the order already has a
	// payment record.
	ErrAlreadyExists = errors.New("payment already exists for order")
	// ErrAlreadySettled is returned when a new session is requested for a
	// payment that reached success or refunded.
	ErrAlreadySettled = errors.New("payment already settled")
	// ErrNotPayable is returned when the order is not in a payable status.
	ErrNotPayable = errors.New("order is not payable")
	// ErrInvalidSignature is returned when a webhook signature does not
	// verify. Security-relevant: always rejected, never silently accepted.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownProvider is returned for webhooks addressed to a provider
	// this deployment is not configured for.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// GatewayError wraps a transport or provider-side failure during session
// creation. The local payment is marked failed; retrying is the caller's
// decision, never automatic.
type GatewayError struct {
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Payment is the one-to-one companion of an order. RawPayload holds the last
// provider payload verbatim for audit; business logic never parses it after
// initial ingestion.
type Payment struct {
	ID            string
	OrderID       string
	Provider      string
	TransactionID string
	SessionToken  string
	RedirectURL   string
	Amount        decimal.Decimal
	Status        Status
	RawPayload    []byte
	CreatedAt     time.Time
	PaidAt        *time.Time
	ExpiredAt     *time.Time
}

// Repository defines persistence operations for payments.
type Repository interface {
	// Create persists a new payment. Returns ErrAlreadyExists when the order
	// already has one (payments are one-to-one with orders).
	Create(ctx context.Context, p *Payment) error

	// GetByOrderID returns the order's payment, or ErrNotFound.
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// Update persists mutable payment fields (status, transaction id,
	// session, raw payload, timestamps).
	Update(ctx context.Context, p *Payment) error

	// ListExpired returns pending or processing payments whose expired_at is
	// in the past, up to limit rows.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]ExpiredPayment, error)
}

// ExpiredPayment is a sweep candidate: an overdue payment together with its
// order keys, so the sweeper can take the same per-order lock the webhook
// reconciler uses.
type ExpiredPayment struct {
	PaymentID   string
	OrderID     string
	OrderNumber string
}

// EventLog records which provider events have been applied. The key
// (provider, transaction id, event type) makes duplicate deliveries
// detectable regardless of ordering.
type EventLog interface {
	// Record stores the event payload and reports whether this is the first
	// time the event was seen. Duplicates return false without error.
	Record(ctx context.Context, provider, transactionID, eventType string, payload []byte) (first bool, err error)
}
