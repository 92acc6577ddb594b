package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SessionLine is one entry in the provider-neutral item list sent with a
// session request. Discounts appear as a negative-priced line and shipping
// as a regular line, because some providers require the gross amount to
// equal the literal sum of listed items.
type SessionLine struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// SessionRequest is the provider-neutral input for creating a payment
// session.
type SessionRequest struct {
	OrderNumber string
	GrossAmount decimal.Decimal
	Lines       []SessionLine
	ExpiresAt   time.Time
}

// Session is the provider's handle for a created payment session.
type Session struct {
	Token       string
	RedirectURL string
}

// Notification is a provider webhook event normalized to the fields the
// reconciler needs. Raw preserves the original payload for audit.
type Notification struct {
	OrderNumber       string
	TransactionID     string
	TransactionStatus string
	StatusCode        string
	GrossAmount       string
	FraudStatus       string
	SignatureKey      string
	Raw               []byte
}

// Gateway abstracts one payment provider. Implementations translate between
// provider payloads and the neutral types above; no provider-specific JSON
// leaks past this interface.
type Gateway interface {
	// Name identifies the provider (used in payment records and webhook routes).
	Name() string

	// CreateSession calls the provider to open a payment session. The
	// implementation applies its own bounded timeout to the outbound call.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)

	// ParseNotification decodes a raw webhook body.
	ParseNotification(raw []byte) (*Notification, error)

	// VerifySignature recomputes the provider signature and compares it to
	// the one carried by the notification.
	VerifySignature(n *Notification) bool

	// MapStatus translates the provider status to the internal one.
	MapStatus(n *Notification) Status
}
