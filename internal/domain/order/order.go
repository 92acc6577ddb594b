// Package order implements the order lifecycle: checkout (cart to order
// conversion with stock reservation and discount accounting), the order
// status state machine, and payment-driven settlement.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the order lifecycle state. See Transition for the legal edges.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ShippingInfo is the delivery snapshot copied onto the order at checkout.
// It is never re-derived from the user profile afterwards.
type ShippingInfo struct {
	Name       string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

// OrderItem is a single order line. ProductName, VariantName and Price are
// snapshots taken at checkout; the live catalog may change after the order
// is placed and must never leak back into these fields.
type OrderItem struct {
	ID          string
	VariantID   string
	ProductName string
	VariantName string
	Price       decimal.Decimal
	Quantity    int
}

// Subtotal returns price * quantity for this line.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the persistent record of a completed checkout. Monetary fields
// satisfy total = subtotal - discount_amount + shipping_cost. Orders are
// never deleted; cancellation is a terminal status, not a row removal.
type Order struct {
	ID             string
	Number         string
	UserID         string
	Status         Status
	Items          []OrderItem
	Subtotal       decimal.Decimal
	DiscountCode   string
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	Shipping       ShippingInfo
	Note           string
	CreatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order together with its items.
	Create(ctx context.Context, o *Order) error

	// GetByID returns the order with its items, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)

	// GetByNumber returns the order with its items, or ErrNotFound.
	GetByNumber(ctx context.Context, number string) (*Order, error)

	// NumberExists reports whether an order number is already taken.
	NumberExists(ctx context.Context, number string) (bool, error)

	// UpdateStatus persists the order's status, lifecycle timestamps and note.
	UpdateStatus(ctx context.Context, o *Order) error
}

// ValidationError indicates malformed checkout input, rejected before any
// mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InactiveVariantError indicates a cart line references a variant that is
// disabled or no longer purchasable.
type InactiveVariantError struct {
	VariantID string
}

func (e *InactiveVariantError) Error() string {
	return fmt.Sprintf("variant %s is not available for purchase", e.VariantID)
}

func validateShipping(s ShippingInfo) error {
	fields := []struct{ name, value string }{
		{"shipping name", s.Name},
		{"shipping phone", s.Phone},
		{"shipping address", s.Address},
		{"shipping city", s.City},
		{"shipping postal code", s.PostalCode},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}
