// Package discount implements discount-code validation and usage accounting.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the order subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed discounts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

var (
	// ErrInvalidCode is returned when a discount code is unknown or inactive.
	ErrInvalidCode = errors.New("invalid discount code")
	// ErrExpired is returned when a discount is past its validity window.
	ErrExpired = errors.New("discount code expired")
	// ErrMinOrderNotMet is returned when the order subtotal is below the
	// discount's minimum order amount.
	ErrMinOrderNotMet = errors.New("order amount below discount minimum")
	// ErrUsageLimitReached is returned when the code has exhausted its uses.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
)

// Discount is a promo code with its constraints and usage counters.
// UsageLimit of zero means unlimited.
type Discount struct {
	Code           string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	ValidUntil     *time.Time
	UsageLimit     int
	UsageCount     int
}

// Repository provides lookup and usage accounting for discounts.
type Repository interface {
	// FindByCode returns the active discount for code, or ErrInvalidCode.
	FindByCode(ctx context.Context, code string) (*Discount, error)

	// ConsumeUse increments usage_count by one, guarded so that the count
	// never exceeds usage_limit under concurrency. Returns
	// ErrUsageLimitReached when no uses remain. Usage is never refunded:
	// cancelling an order does not decrement the counter.
	ConsumeUse(ctx context.Context, code string) error
}
